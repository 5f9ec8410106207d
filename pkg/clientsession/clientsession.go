// Package clientsession implements ClientSession (C8): the merged
// capability view and permission filter a client's requests are evaluated
// against. Grounded on the teacher's pkg/gateway/capabilitites.go
// aggregation-then-filter shape, generalized to the spec's three-layer
// visibility rule (server cache, permission, preference) and its mandatory
// name-prefixing scheme.
package clientsession

import (
	"encoding/json"

	"github.com/mcp-proxy/gateway/pkg/capabilities"
	"github.com/mcp-proxy/gateway/pkg/store"
)

// ServerView is one downstream server's live, accessible state as seen by a
// client session.
type ServerView struct {
	ServerID       string
	Enabled        bool
	Online         bool
	AllowUserInput bool
	OwnedByUser    bool
	Permission     store.ServerPermission
	Preference     store.ServerPermission
	ServerConfig   store.CapabilityConfig
	LiveTools      []Item
	LiveResources  []Item
	LivePrompts    []Item
	ListChanged    bool
	ResourceSub    bool
	Completions    bool
	Logging        bool
}

// Item is one raw tool/resource/prompt entry as reported by a downstream
// server, prior to filtering/prefixing.
type Item struct {
	Name             string
	Raw              json.RawMessage
	DestructiveHint  bool
}

// Accessible reports whether a server's capabilities are visible to this
// session at all, per spec.md §4.6 rule 2.
func (v ServerView) Accessible() bool {
	if !v.Enabled || !v.Online {
		return false
	}
	if v.AllowUserInput {
		return v.OwnedByUser
	}
	return v.Permission.Enabled && v.Preference.Enabled
}

// Aggregator builds the merged, filtered, prefixed capability view for a
// client session out of the ServerSupervisor's accessible servers.
type Aggregator struct {
	DangerPreference func(serverID, item string) *capabilities.DangerLevel
}

// Tool is one filtered, prefixed tool ready for emission to the client.
type Tool struct {
	PrefixedName string
	ServerID     string
	Raw          json.RawMessage
	Danger       capabilities.DangerLevel
	Annotations  capabilities.ToolAnnotationHints
}

// AggregateTools unions visible tools across all accessible servers,
// applying the per-item visibility rule and name prefixing, per
// spec.md §4.6 rules 3-5.
func (a *Aggregator) AggregateTools(views []ServerView) []Tool {
	var out []Tool
	for _, v := range views {
		if !v.Accessible() {
			continue
		}
		for _, item := range v.LiveTools {
			if !toolVisible(item.Name, v.ServerConfig.Tools, v.Permission.Tools, v.Preference.Tools) {
				continue
			}
			level := resolveToolDanger(v, item)
			out = append(out, Tool{
				PrefixedName: capabilities.Prefix(item.Name, v.ServerID),
				ServerID:     v.ServerID,
				Raw:          item.Raw,
				Danger:       level,
				Annotations:  capabilities.AnnotationsForEmission(level, capabilities.ToolAnnotationHints{DestructiveHint: item.DestructiveHint}),
			})
		}
	}
	return out
}

func resolveToolDanger(v ServerView, item Item) capabilities.DangerLevel {
	var preference *capabilities.DangerLevel
	if tp, ok := v.Preference.Tools[item.Name]; ok && tp.DangerLevel != nil {
		lvl := capabilities.DangerLevel(*tp.DangerLevel)
		preference = &lvl
	}
	var serverCfg *capabilities.DangerLevel
	if tp, ok := v.ServerConfig.Tools[item.Name]; ok && tp.DangerLevel != nil {
		lvl := capabilities.DangerLevel(*tp.DangerLevel)
		serverCfg = &lvl
	}
	return capabilities.ResolveDangerLevel(preference, serverCfg, item.DestructiveHint)
}

// Generic is a filtered, prefixed resource or prompt ready for emission.
type Generic struct {
	PrefixedName string
	ServerID     string
	Raw          json.RawMessage
}

// AggregateResources unions visible resources, per spec.md §4.6 rules 1-4.
func (a *Aggregator) AggregateResources(views []ServerView) []Generic {
	return aggregateGeneric(views, func(v ServerView) []Item { return v.LiveResources },
		func(v ServerView) map[string]store.ItemConfig { return v.ServerConfig.Resources },
		func(v ServerView) map[string]store.ItemConfig { return v.Permission.Resources },
		func(v ServerView) map[string]store.ItemConfig { return v.Preference.Resources },
	)
}

// AggregatePrompts unions visible prompts, per spec.md §4.6 rules 1-4.
func (a *Aggregator) AggregatePrompts(views []ServerView) []Generic {
	return aggregateGeneric(views, func(v ServerView) []Item { return v.LivePrompts },
		func(v ServerView) map[string]store.ItemConfig { return v.ServerConfig.Prompts },
		func(v ServerView) map[string]store.ItemConfig { return v.Permission.Prompts },
		func(v ServerView) map[string]store.ItemConfig { return v.Preference.Prompts },
	)
}

func aggregateGeneric(
	views []ServerView,
	items func(ServerView) []Item,
	serverCfg, perm, pref func(ServerView) map[string]store.ItemConfig,
) []Generic {
	var out []Generic
	for _, v := range views {
		if !v.Accessible() {
			continue
		}
		for _, item := range items(v) {
			if !itemVisible(item.Name, serverCfg(v), perm(v), pref(v)) {
				continue
			}
			out = append(out, Generic{
				PrefixedName: capabilities.Prefix(item.Name, v.ServerID),
				ServerID:     v.ServerID,
				Raw:          item.Raw,
			})
		}
	}
	return out
}

// itemVisible implements spec.md §4.6 rule 3: visible iff server-cached,
// permission, and preference are all enabled, each defaulting true when
// absent.
func itemVisible(name string, serverCfg, perm, pref map[string]store.ItemConfig) bool {
	return enabledOrDefault(serverCfg, name) && enabledOrDefault(perm, name) && enabledOrDefault(pref, name)
}

func enabledOrDefault(m map[string]store.ItemConfig, name string) bool {
	cfg, ok := m[name]
	if !ok {
		return true
	}
	return cfg.Enabled
}

// toolVisible mirrors itemVisible but for tools, whose permission/preference
// overlays are typed store.ToolPerm rather than store.ItemConfig (they
// additionally carry a per-tool danger-level override).
func toolVisible(name string, serverCfg map[string]store.ItemConfig, perm, pref map[string]store.ToolPerm) bool {
	return enabledOrDefault(serverCfg, name) && toolPermEnabled(perm, name) && toolPermEnabled(pref, name)
}

func toolPermEnabled(m map[string]store.ToolPerm, name string) bool {
	cfg, ok := m[name]
	if !ok {
		return true
	}
	return cfg.Enabled
}

// AggregateFlags merges server-level capability flags into one object
// advertised to the client on initialization, per spec.md §4.6.
type AggregateFlags struct {
	ListChanged bool
	ResourceSub bool
	Completions bool
	Logging     bool
}

// AggregateCapabilityFlags ORs each server's flags together: if any
// accessible server supports a capability, the proxy advertises it.
func AggregateCapabilityFlags(views []ServerView) AggregateFlags {
	var flags AggregateFlags
	for _, v := range views {
		if !v.Accessible() {
			continue
		}
		flags.ListChanged = flags.ListChanged || v.ListChanged
		flags.ResourceSub = flags.ResourceSub || v.ResourceSub
		flags.Completions = flags.Completions || v.Completions
		flags.Logging = flags.Logging || v.Logging
	}
	return flags
}
