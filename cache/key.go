package cache

import "strings"

// Entity names the kind of row a cached value holds.
type Entity string

const (
	EntityUsers      Entity = "users"
	EntityChallenges Entity = "challenges"
	EntityLuxicles   Entity = "luxicles"
	EntityCategories Entity = "categories"
	EntityTags       Entity = "tags"
)

// Scope names the shape of a read within an entity.
type Scope string

const (
	ScopeDetail     Scope = "detail"
	ScopeUsername   Scope = "username"
	ScopeList       Scope = "list"
	ScopeSearch     Scope = "search"
	ScopePopular    Scope = "popular"
	ScopeFollowers  Scope = "followers"
	ScopeFollowing  Scope = "following"
	ScopeFollowEdge Scope = "follow-edge"
)

// IsCollection reports whether reads in this scope return lists.
// Collections use the short staleness window.
func (s Scope) IsCollection() bool {
	switch s {
	case ScopeList, ScopeSearch, ScopePopular, ScopeFollowers, ScopeFollowing:
		return true
	default:
		return false
	}
}

var keySerializer = NewDefaultKeySerializer()

// Key identifies one cached read. Two keys with equal fields always render to
// the same String, regardless of map ordering inside Params.
type Key struct {
	Entity Entity
	Scope  Scope
	ID     string
	Params any
}

func DetailKey(entity Entity, id string) Key {
	return Key{Entity: entity, Scope: ScopeDetail, ID: id}
}

func ListKey(entity Entity, params any) Key {
	return Key{Entity: entity, Scope: ScopeList, Params: params}
}

func SearchKey(entity Entity, params any) Key {
	return Key{Entity: entity, Scope: ScopeSearch, Params: params}
}

// String is the canonical form used as the storage key.
func (k Key) String() string {
	args := make([]any, 0, 3)
	args = append(args, string(k.Scope))
	if k.ID != "" {
		args = append(args, k.ID)
	}
	if k.Params != nil {
		args = append(args, k.Params)
	}
	return keySerializer.SerializeKey(string(k.Entity), args...)
}

// Prefix selects every key whose canonical form starts with it on a segment boundary.
type Prefix string

// EntityPrefix matches every key of an entity.
func EntityPrefix(entity Entity) Prefix {
	return Prefix(entity)
}

// ScopePrefix matches every key of an entity within one scope, e.g. all luxicle lists.
func ScopePrefix(entity Entity, scope Scope) Prefix {
	return Prefix(string(entity) + KeySeparator + string(scope))
}

// Exact matches a single key only (and keys that extend it with further segments).
func (k Key) Exact() Prefix {
	return Prefix(k.String())
}

// Matches reports whether the canonical key falls under p.
func (p Prefix) Matches(key string) bool {
	s := string(p)
	if s == "" {
		return true
	}
	return key == s || strings.HasPrefix(key, s+KeySeparator)
}

// CollectionPrefixes returns the prefixes of every list-like scope of entity.
func CollectionPrefixes(entity Entity) []Prefix {
	return []Prefix{
		ScopePrefix(entity, ScopeList),
		ScopePrefix(entity, ScopeSearch),
		ScopePrefix(entity, ScopePopular),
		ScopePrefix(entity, ScopeFollowers),
		ScopePrefix(entity, ScopeFollowing),
	}
}
