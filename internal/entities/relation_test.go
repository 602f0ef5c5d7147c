package entities

import "testing"

func validRelation() *PermissionRelation {
	return &PermissionRelation{
		SubjectKind:  KindIdentity,
		SubjectName:  "alice",
		PredicateURI: "urn:test:allow-update",
		ObjectKind:   ObjectResource,
		ObjectID:     "doc1",
	}
}

func TestPermissionRelation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PermissionRelation)
		wantErr bool
	}{
		{name: "valid resource edge", mutate: func(r *PermissionRelation) {}, wantErr: false},
		{name: "valid self-referencing edge", mutate: func(r *PermissionRelation) {
			r.ObjectKind = ObjectIdentity
			r.ObjectID = "alice"
		}, wantErr: false},
		{name: "group subject", mutate: func(r *PermissionRelation) {
			r.SubjectKind = KindGroup
			r.SubjectName = "editors"
		}, wantErr: false},
		{name: "invalid subject kind", mutate: func(r *PermissionRelation) { r.SubjectKind = "robot" }, wantErr: true},
		{name: "missing subject name", mutate: func(r *PermissionRelation) { r.SubjectName = "" }, wantErr: true},
		{name: "missing predicate", mutate: func(r *PermissionRelation) { r.PredicateURI = "" }, wantErr: true},
		{name: "invalid object kind", mutate: func(r *PermissionRelation) { r.ObjectKind = "shelf" }, wantErr: true},
		{name: "missing object ID", mutate: func(r *PermissionRelation) { r.ObjectID = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := validRelation()
			tt.mutate(rel)
			err := rel.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPermissionRelation_String(t *testing.T) {
	got := validRelation().String()
	want := "identity:alice#urn:test:allow-update@resource:doc1"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
