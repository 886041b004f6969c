package schema

import "testing"

func TestContractValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Contract
		wantErr bool
	}{
		{
			name: "ok",
			c:    Contract{Name: "rows", Key: []string{"id"}, Fields: []Field{{Name: "id", Type: TypeString}}},
		},
		{
			name:    "missing name",
			c:       Contract{Fields: []Field{{Name: "id"}}},
			wantErr: true,
		},
		{
			name:    "duplicate field",
			c:       Contract{Name: "rows", Fields: []Field{{Name: "id"}, {Name: "id"}}},
			wantErr: true,
		},
		{
			name:    "unknown key",
			c:       Contract{Name: "rows", Key: []string{"nope"}, Fields: []Field{{Name: "id"}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%t", err, tt.wantErr)
			}
		})
	}
}

func TestSQLType(t *testing.T) {
	if got := SQLType(TypeInt); got != "INTEGER" {
		t.Fatalf("int: got %q", got)
	}
	if got := SQLType(TypeFloat); got != "TEXT" {
		t.Fatalf("float: got %q", got)
	}
}
