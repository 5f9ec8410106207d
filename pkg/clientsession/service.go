package clientsession

import (
	"encoding/json"
	"sort"

	"github.com/mcp-proxy/gateway/pkg/store"
)

// CapabilitiesService is CapabilitiesService (C11): composes DB-stored
// server config, live ServerContext data, admin-assigned permissions, and
// user preferences into the single filtered view the Aggregator renders
// for a client. Lives alongside Aggregator (C8) rather than in
// pkg/capabilities (prefix/danger primitives only) to keep the dependency
// direction one-way: this package depends on pkg/capabilities, not vice
// versa.
type CapabilitiesService struct {
	aggregator *Aggregator
}

// NewCapabilitiesService builds a CapabilitiesService.
func NewCapabilitiesService() *CapabilitiesService {
	return &CapabilitiesService{aggregator: &Aggregator{}}
}

// ServerInput bundles everything the service needs about one server to
// build its ServerView: its persisted entity/config, the caller's
// permission and preference overlays, and its live capability lists.
type ServerInput struct {
	Entity        *store.ServerEntity
	Online        bool
	OwnedByUser   bool
	Permission    store.ServerPermission
	Preference    store.ServerPermission
	LiveTools     []Item
	LiveResources []Item
	LivePrompts   []Item
	ListChanged   bool
	ResourceSub   bool
	Completions   bool
	Logging       bool
}

func (in ServerInput) toView() ServerView {
	return ServerView{
		ServerID:       in.Entity.ServerID,
		Enabled:        in.Entity.Enabled,
		Online:         in.Online,
		AllowUserInput: in.Entity.AllowUserInput,
		OwnedByUser:    in.OwnedByUser,
		Permission:     in.Permission,
		Preference:     in.Preference,
		ServerConfig:   in.Entity.Capabilities,
		LiveTools:      in.LiveTools,
		LiveResources:  in.LiveResources,
		LivePrompts:    in.LivePrompts,
		ListChanged:    in.ListChanged,
		ResourceSub:    in.ResourceSub,
		Completions:    in.Completions,
		Logging:        in.Logging,
	}
}

// View is the fully composed, filtered, prefixed capability set for a
// client session.
type View struct {
	Tools     []Tool
	Resources []Generic
	Prompts   []Generic
	Flags     AggregateFlags
}

// Allows reports whether prefixedName is present in the composed view for
// the given forwarded method, i.e. whether the three-layer visibility rule
// (server cache, permission, preference) left it enabled. ProxySession uses
// this as the permission check on tools/call, resources/read,
// resources/subscribe, resources/unsubscribe and prompts/get before
// forwarding a request downstream, per spec.md §4.5: a name that never made
// it into tools/list etc. must not be reachable by calling it directly
// either. Methods this view does not filter by name (completion/complete)
// are always allowed here.
func (v View) Allows(method, prefixedName string) bool {
	switch method {
	case "tools/call":
		for _, t := range v.Tools {
			if t.PrefixedName == prefixedName {
				return true
			}
		}
		return false
	case "resources/read", "resources/subscribe", "resources/unsubscribe":
		for _, r := range v.Resources {
			if r.PrefixedName == prefixedName {
				return true
			}
		}
		return false
	case "prompts/get":
		for _, p := range v.Prompts {
			if p.PrefixedName == prefixedName {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Compose builds the View a client session should see, per spec.md §4.6.
func (s *CapabilitiesService) Compose(inputs []ServerInput) View {
	views := make([]ServerView, 0, len(inputs))
	for _, in := range inputs {
		views = append(views, in.toView())
	}
	return View{
		Tools:     s.aggregator.AggregateTools(views),
		Resources: s.aggregator.AggregateResources(views),
		Prompts:   s.aggregator.AggregatePrompts(views),
		Flags:     AggregateCapabilityFlags(views),
	}
}

// IsCapabilityListChanged compares two raw capability lists for structural
// equality independent of key ordering, per spec.md §9's design note:
// "returns false when both sides are structurally identical but with
// reordered keys." Implemented via canonicalization (recursively sorting
// object keys) followed by a byte comparison, rather than a deep-equal
// walk, so the same helper serves any JSON shape list/tool/resource emits.
func IsCapabilityListChanged(oldRaw, newRaw json.RawMessage) (bool, error) {
	oldCanon, err := canonicalize(oldRaw)
	if err != nil {
		return false, err
	}
	newCanon, err := canonicalize(newRaw)
	if err != nil {
		return false, err
	}
	return oldCanon != newCanon, nil
}

func canonicalize(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	b, err := json.Marshal(sortKeys(v))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sortKeys recursively rebuilds maps/slices so json.Marshal emits object
// keys in sorted order (encoding/json already sorts map[string]any keys on
// marshal, but nested slices of objects are walked too for uniformity).
func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortKeys(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return val
	}
}
