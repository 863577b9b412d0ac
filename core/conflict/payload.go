package conflict

import (
	"fmt"
	"sort"
	"strings"

	"kb-bridge/core/utils"

	"gopkg.in/yaml.v3"
)

// ResolutionPayload is a parsed set of resolution requests with batch options.
type ResolutionPayload struct {
	Requests             []ResolutionRequest
	DefaultStrategy      ResolutionType
	AutoResolveRemaining bool
}

// Options returns the batch options carried by the payload.
func (p ResolutionPayload) Options() BatchOptions {
	return BatchOptions{AutoResolveRemaining: p.AutoResolveRemaining, DefaultStrategy: p.DefaultStrategy}
}

// ParseResolutionPayload reads resolution requests in any of the accepted
// shapes. JSON and YAML are both accepted:
//
//	[{"conflict_id": "conf_...", "resolution_type": "keep_ours"}]
//	{"resolutions": [...], "default_strategy": "skip", "auto_resolve_remaining": true}
//	{"conf_...": "keep_theirs", "default_strategy": "skip"}
func ParseResolutionPayload(data []byte) (ResolutionPayload, error) {
	var p ResolutionPayload
	if strings.TrimSpace(string(data)) == "" {
		return p, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p, fmt.Errorf("parse resolutions: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		return p, nil
	case []any:
		reqs, err := parseRequestList(v)
		if err != nil {
			return p, err
		}
		p.Requests = reqs
	case map[string]any:
		if err := p.parseObject(v); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("parse resolutions: unexpected %T at top level", raw)
	}

	sort.SliceStable(p.Requests, func(i, j int) bool { return p.Requests[i].ConflictID < p.Requests[j].ConflictID })
	return p, nil
}

func (p *ResolutionPayload) parseObject(obj map[string]any) error {
	for key, val := range obj {
		switch key {
		case "default_strategy", "defaultStrategy":
			s := utils.ToString(val)
			if s == "" {
				continue
			}
			rt, err := ParseResolutionType(s)
			if err != nil {
				return fmt.Errorf("parse resolutions: default_strategy: %w", err)
			}
			p.DefaultStrategy = rt
		case "auto_resolve_remaining", "autoResolveRemaining":
			p.AutoResolveRemaining = utils.ToBool(val)
		case "resolutions":
			switch rv := val.(type) {
			case []any:
				reqs, err := parseRequestList(rv)
				if err != nil {
					return err
				}
				p.Requests = append(p.Requests, reqs...)
			case map[string]any:
				for id, item := range rv {
					req, err := parseRequestValue(id, item)
					if err != nil {
						return err
					}
					p.Requests = append(p.Requests, req)
				}
			case nil:
			default:
				return fmt.Errorf("parse resolutions: resolutions must be a list or a map, got %T", val)
			}
		default:
			req, err := parseRequestValue(key, val)
			if err != nil {
				return err
			}
			p.Requests = append(p.Requests, req)
		}
	}
	return nil
}

func parseRequestList(items []any) ([]ResolutionRequest, error) {
	out := make([]ResolutionRequest, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse resolutions: item %d is %T, want an object", i, item)
		}
		req, err := parseRequestValue(utils.ToString(m["conflict_id"]), m)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// parseRequestValue reads either a bare strategy string or an object.
func parseRequestValue(id string, val any) (ResolutionRequest, error) {
	req := ResolutionRequest{ConflictID: id}
	var tag string
	switch v := val.(type) {
	case string:
		tag = v
	case map[string]any:
		if cid := utils.ToString(v["conflict_id"]); cid != "" {
			req.ConflictID = cid
		}
		tag = utils.ToString(v["resolution_type"])
		if tag == "" {
			tag = utils.ToString(v["resolution"])
		}
		if c, ok := v["custom_content"]; ok && c != nil {
			s := utils.ToString(c)
			req.CustomContent = &s
		}
		if m, ok := v["custom_metadata"].(map[string]any); ok {
			req.CustomMetadata = m
		}
	default:
		return req, fmt.Errorf("parse resolutions: %s: unexpected %T", id, val)
	}
	if req.ConflictID == "" {
		return req, fmt.Errorf("parse resolutions: missing conflict_id")
	}
	rt, err := ParseResolutionType(tag)
	if err != nil {
		return req, fmt.Errorf("parse resolutions: %s: %w", req.ConflictID, err)
	}
	req.ResolutionType = rt
	return req, nil
}

// ParseRequestPayload reads a request body that carries resolutions next to
// other fields. Keys named in known (matched in snake case) are decoded into
// fields through its yaml tags; everything else is read as a resolution
// payload in any accepted shape.
func ParseRequestPayload(data []byte, fields any, known ...string) (ResolutionPayload, error) {
	if strings.TrimSpace(string(data)) == "" {
		return ResolutionPayload{}, nil
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ResolutionPayload{}, fmt.Errorf("parse request: %w", err)
	}

	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}
	head := make(map[string]any)
	rest := make(map[string]any)
	for k, v := range raw {
		if name := utils.SnakeCase(k); isKnown[name] {
			head[name] = v
			continue
		}
		rest[k] = v
	}

	if fields != nil {
		b, err := yaml.Marshal(head)
		if err != nil {
			return ResolutionPayload{}, fmt.Errorf("parse request: %w", err)
		}
		if err := yaml.Unmarshal(b, fields); err != nil {
			return ResolutionPayload{}, fmt.Errorf("parse request: %w", err)
		}
	}
	if len(rest) == 0 {
		return ResolutionPayload{}, nil
	}
	var p ResolutionPayload
	if err := p.parseObject(rest); err != nil {
		return p, err
	}
	sort.SliceStable(p.Requests, func(i, j int) bool { return p.Requests[i].ConflictID < p.Requests[j].ConflictID })
	return p, nil
}
