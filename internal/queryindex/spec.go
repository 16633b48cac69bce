// Package queryindex keeps, for each registered (filter, sort)
// specification, the ordered list of channel keys currently matching it.
// The index is derived state: it can be dropped and rebuilt from the entity
// store at any time without data loss.
package queryindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

type Op string

const (
	OpEqual    Op = "eq"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Filter is a small predicate tree over channel fields. Leaf filters name a
// field and an operator; And/Or combine children.
type Filter struct {
	Field string   `json:"field,omitempty"`
	Op    Op       `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`
	And   []Filter `json:"and,omitempty"`
	Or    []Filter `json:"or,omitempty"`
}

func (f Filter) Match(ch models.Channel) bool {
	if len(f.And) > 0 {
		for _, sub := range f.And {
			if !sub.Match(ch) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, sub := range f.Or {
			if sub.Match(ch) {
				return true
			}
		}
		return false
	}
	if f.Field == "" {
		// empty filter matches everything
		return true
	}
	return matchLeaf(f, ch)
}

func matchLeaf(f Filter, ch models.Channel) bool {
	switch f.Field {
	case "cid":
		return matchValue(f, string(ch.CID))
	case "type":
		return matchValue(f, ch.Type)
	case "frozen":
		v, _ := f.Value.(bool)
		return ch.Frozen == v
	case "members":
		switch f.Op {
		case OpContains, OpEqual:
			id, _ := f.Value.(string)
			return ch.HasMember(id)
		case OpIn:
			for _, id := range toStrings(f.Value) {
				if ch.HasMember(id) {
					return true
				}
			}
			return false
		}
		return false
	default:
		// anything else resolves against extra data
		return matchValue(f, fmt.Sprint(ch.ExtraData[f.Field]))
	}
}

func matchValue(f Filter, got string) bool {
	switch f.Op {
	case OpEqual:
		want, _ := f.Value.(string)
		return got == want
	case OpIn:
		return util.SliceIncludes(toStrings(f.Value), got)
	case OpContains:
		want, _ := f.Value.(string)
		return got == want
	}
	return false
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, _ := item.(string)
			out = append(out, s)
		}
		return out
	}
	return nil
}

type SortField string

const (
	SortLastActivity SortField = "last_activity"
	SortCreatedAt    SortField = "created_at"
	SortUpdatedAt    SortField = "updated_at"
	SortMemberCount  SortField = "member_count"
)

type Sort struct {
	Field SortField `json:"field"`
	Desc  bool      `json:"desc"`
}

// DefaultSort is most-recent-activity first: last message time falling back
// to creation time, descending. Ties break by cid ascending so pagination
// is reproducible for identical timestamps.
func DefaultSort() []Sort {
	return []Sort{{Field: SortLastActivity, Desc: true}}
}

// Spec is a registered channel-list query. Its identity is the content hash
// of filter plus sort, so registering the same spec twice is idempotent.
type Spec struct {
	Filter Filter `json:"filter"`
	Sort   []Sort `json:"sort"`
}

type QueryID string

func (s Spec) ID() QueryID {
	if len(s.Sort) == 0 {
		s.Sort = DefaultSort()
	}
	raw, err := json.Marshal(s)
	if err != nil {
		// a Spec is always marshalable; the error path exists for the
		// unexpected Value types callers might sneak in
		raw = []byte(fmt.Sprintf("%+v", s))
	}
	sum := sha256.Sum256(raw)
	return QueryID(hex.EncodeToString(sum[:]))
}
