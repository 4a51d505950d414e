package cache

import (
	"testing"

	"github.com/robby3000/luxicle/internal/models"
)

func TestKey_UserTextCannotForgeAnotherFilter(t *testing.T) {
	tests := []struct {
		name string
		a, b any
	}{
		{
			name: "query carrying a field separator",
			a:    models.LuxicleSearch{Query: "art,CategoryID:cat1", Limit: 20},
			b:    models.LuxicleSearch{Query: "art", CategoryID: "cat1", Limit: 20},
		},
		{
			name: "tag id carrying a list separator",
			a:    models.ChallengeFilter{TagIDs: []string{"t1,t2"}},
			b:    models.ChallengeFilter{TagIDs: []string{"t1", "t2"}},
		},
		{
			name: "map value carrying a pair separator",
			a:    map[string]string{"q": "art,z=1"},
			b:    map[string]string{"q": "art", "z": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := SearchKey(EntityLuxicles, tt.a).String()
			kb := SearchKey(EntityLuxicles, tt.b).String()
			if ka == kb {
				t.Fatalf("distinct params rendered the same key %q", ka)
			}
		})
	}
}

func TestKey_IDCannotExtendIntoParams(t *testing.T) {
	forged := Key{Entity: EntityUsers, Scope: ScopeFollowers, ID: `u1::struct:{Limit:20}`}
	actual := Key{Entity: EntityUsers, Scope: ScopeFollowers, ID: "u1", Params: struct{ Limit int }{20}}
	if forged.String() == actual.String() {
		t.Fatalf("id rendered as params: %q", forged.String())
	}
	if !ScopePrefix(EntityUsers, ScopeFollowers).Matches(forged.String()) {
		t.Fatal("quoted id should still sit under its scope prefix")
	}
}
