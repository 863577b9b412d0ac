package conflict

import (
	"fmt"
	"sort"
	"strings"

	"kb-bridge/core/utils"
)

// ParseResolutionType normalizes a strategy tag. Case, dashes, spaces and
// camel case are tolerated ("KeepOurs", "keep-ours" and "keep_ours" are equal).
func ParseResolutionType(s string) (ResolutionType, error) {
	tag := ResolutionType(utils.SnakeCase(strings.TrimSpace(s)))
	switch tag {
	case ResolutionKeepOurs, ResolutionKeepTheirs, ResolutionKeepSource, ResolutionKeepTarget,
		ResolutionFieldMerge, ResolutionMerge, ResolutionCustom, ResolutionSkip, ResolutionAuto:
		return tag, nil
	case "auto", "autoresolve":
		return ResolutionAuto, nil
	case "ours":
		return ResolutionKeepOurs, nil
	case "theirs":
		return ResolutionKeepTheirs, nil
	case "source":
		return ResolutionKeepSource, nil
	case "target":
		return ResolutionKeepTarget, nil
	}
	return "", fmt.Errorf("unknown resolution type %q", s)
}

// canonical maps the import vocabulary onto the merge vocabulary.
func canonical(r ResolutionType) ResolutionType {
	switch r {
	case ResolutionKeepSource:
		return ResolutionKeepTheirs
	case ResolutionKeepTarget:
		return ResolutionKeepOurs
	case ResolutionMerge:
		return ResolutionFieldMerge
	default:
		return r
	}
}

// localize names a canonical resolution in the vocabulary of a scenario.
func localize(s Scenario, r ResolutionType) ResolutionType {
	r = canonical(r)
	if s != ScenarioImport {
		return r
	}
	switch r {
	case ResolutionKeepTheirs:
		return ResolutionKeepSource
	case ResolutionKeepOurs:
		return ResolutionKeepTarget
	case ResolutionFieldMerge:
		return ResolutionMerge
	default:
		return r
	}
}

func (c Conflict) allows(r ResolutionType) bool {
	want := canonical(r)
	for _, o := range c.ResolutionOptions {
		if canonical(o) == want {
			return true
		}
	}
	return false
}

// Resolve applies one resolution request to one conflict. Failures are
// reported on the outcome and never panic or abort.
func Resolve(c Conflict, req ResolutionRequest, contentFields []string) ResolutionOutcome {
	out := ResolutionOutcome{
		ConflictID: c.ConflictID,
		DocumentID: c.DocumentID,
		Collection: c.collectionLabel(),
		Type:       c.Type,
	}
	fail := func(err *Error) ResolutionOutcome {
		out.Success = false
		out.Error = err.Error()
		out.ErrorKind = err.Kind
		return out
	}

	if req.ResolutionType == "" {
		return fail(newInvalidResolution(c, "no resolution type given"))
	}
	parsed, err := ParseResolutionType(string(req.ResolutionType))
	if err != nil {
		return fail(newInvalidResolution(c, "%v", err))
	}
	rt := canonical(parsed)
	if rt == ResolutionAuto {
		if !c.AutoResolvable {
			return fail(newInvalidResolution(c, "%s conflict requires a manual resolution", c.Type))
		}
		rt = canonical(c.SuggestedResolution)
	}
	if !c.allows(rt) {
		return fail(newInvalidResolution(c, "resolution %s is not valid for a %s conflict", localize(c.Scenario, rt), c.Type))
	}
	out.Resolution = localize(c.Scenario, rt)

	switch rt {
	case ResolutionKeepOurs:
		if c.Type == TypeCollectionMismatch {
			out.Action = ActionProceed
			break
		}
		out.applySnapshot(c.Ours)
	case ResolutionKeepTheirs:
		if c.Type == TypeIDCollision && len(c.Sources) > 0 {
			out.applySnapshot(c.Sources[0].Snapshot)
			out.SourceCollection = c.Sources[0].Collection
			break
		}
		out.applySnapshot(c.Theirs)
		out.SourceCollection = c.SourceCollection
	case ResolutionFieldMerge:
		m := FieldMerge(c.Base, c.Ours, c.Theirs, contentFields)
		out.Action = ActionWrite
		out.Content = m.Content
		out.Metadata = m.Metadata
		out.Confidence = m.Confidence
		out.Warnings = append(out.Warnings, m.Warnings...)
	case ResolutionCustom:
		if req.CustomContent == nil && req.CustomMetadata == nil {
			return fail(newInvalidResolution(c, "custom resolution needs custom_content or custom_metadata"))
		}
		out.Action = ActionWrite
		out.Content = req.CustomContent
		if out.Content == nil {
			out.Content = c.Ours.Content
		}
		out.Metadata = req.CustomMetadata
		if out.Metadata == nil {
			out.Metadata = c.Ours.Metadata
		}
	case ResolutionSkip:
		out.Action = ActionSkip
	default:
		return fail(newInvalidResolution(c, "unsupported resolution %s", rt))
	}
	out.Success = true
	return out
}

func (o *ResolutionOutcome) applySnapshot(s Snapshot) {
	if !s.Exists {
		o.Action = ActionDelete
		return
	}
	o.Action = ActionWrite
	o.Content = s.Content
	o.Metadata = s.Metadata
}

func defaultRequest(c Conflict, opts BatchOptions) (ResolutionRequest, bool) {
	switch {
	case c.PreviouslyResolved && c.RecordedResolution != "":
		return ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: c.RecordedResolution}, true
	case opts.AutoResolveRemaining && c.AutoResolvable:
		return ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: ResolutionAuto}, true
	case opts.DefaultStrategy != "":
		return ResolutionRequest{ConflictID: c.ConflictID, ResolutionType: opts.DefaultStrategy}, true
	default:
		return ResolutionRequest{}, false
	}
}

// ApplyResolutions resolves every conflict of a batch. Explicit requests win;
// unlisted conflicts fall back to auto-resolution and then to the default
// strategy. One failure never stops the rest of the batch. Outcomes are
// sorted by conflict id.
func ApplyResolutions(conflicts []Conflict, requests []ResolutionRequest, opts BatchOptions, contentFields []string) BatchResolutionResult {
	known := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		known[c.ConflictID] = struct{}{}
	}

	var res BatchResolutionResult
	explicit := make(map[string]ResolutionRequest, len(requests))
	for _, req := range requests {
		if _, ok := known[req.ConflictID]; !ok {
			err := newConflictNotFound(req.ConflictID)
			res.Outcomes = append(res.Outcomes, ResolutionOutcome{
				ConflictID: req.ConflictID,
				Resolution: req.ResolutionType,
				Error:      err.Error(),
				ErrorKind:  err.Kind,
			})
			continue
		}
		explicit[req.ConflictID] = req
	}

	for _, c := range conflicts {
		req, ok := explicit[c.ConflictID]
		if !ok {
			req, ok = defaultRequest(c, opts)
		}
		if !ok {
			err := newInvalidResolution(c, "no resolution requested and no default strategy applies")
			res.Outcomes = append(res.Outcomes, ResolutionOutcome{
				ConflictID: c.ConflictID,
				DocumentID: c.DocumentID,
				Collection: c.collectionLabel(),
				Type:       c.Type,
				Error:      err.Error(),
				ErrorKind:  err.Kind,
			})
			continue
		}
		res.Outcomes = append(res.Outcomes, Resolve(c, req, contentFields))
	}

	sort.SliceStable(res.Outcomes, func(i, j int) bool {
		return res.Outcomes[i].ConflictID < res.Outcomes[j].ConflictID
	})
	for _, o := range res.Outcomes {
		if o.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}
