package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/casescope/hub/internal/engine"
	"github.com/casescope/hub/internal/model"
)

// Answer is one completed chat turn.
type Answer struct {
	Message   string           `json:"message"`
	Citations []model.Citation `json:"citations"`
}

// Pipeline wraps every generation round-trip in three independent
// enforcement layers: a structured retrieval filter, an instruction
// reinforcement, and post-response citation validation. The first two
// only reduce how often the third has to fire; the validation pass is
// the actual correctness guarantee.
type Pipeline struct {
	threads  *ThreadManager
	gen      engine.Generator
	resolver *Resolver
	audit    SecurityLog
}

func NewPipeline(threads *ThreadManager, gen engine.Generator, resolver *Resolver, audit SecurityLog) *Pipeline {
	return &Pipeline{threads: threads, gen: gen, resolver: resolver, audit: audit}
}

// Answer runs one chat turn for the principal's session. The thread is
// looked up (or rebuilt on an entitlement mismatch), the engine is
// invoked with the filter and instruction layers, and every returned
// annotation is validated before anything reaches the caller.
func (p *Pipeline) Answer(ctx context.Context, message string, pr *model.Principal) (*Answer, error) {
	threadID, err := p.threads.GetOrCreate(ctx, pr.SessionID, pr.Entitlement)
	if err != nil {
		return nil, err
	}

	filter := BuildCaseFilter(pr.Entitlement)
	instructions := buildInstructions(pr.Entitlement)

	result, err := p.gen.Run(ctx, threadID, message, filter, instructions)
	if err != nil {
		// Timeouts and terminal engine failures surface with no citations.
		return nil, err
	}

	citations, violation := p.validateAnnotations(ctx, result.Annotations, pr)
	if violation != nil {
		p.audit.Record(ctx, AuditEvent{
			Type:      AuditKillSwitch,
			UserID:    pr.UserID,
			SessionID: pr.SessionID,
			CaseID:    violation.CaseID,
			Detail:    fmt.Sprintf("response discarded: citation resolved to %s", violation.Path),
		})
		return &Answer{
			Message:   RefusalMessage(violation.CaseID, pr.Entitlement),
			Citations: []model.Citation{},
		}, nil
	}

	return &Answer{Message: result.Text, Citations: citations}, nil
}

// ClearThread drops the session's conversation state.
func (p *Pipeline) ClearThread(ctx context.Context, pr *model.Principal) (bool, error) {
	return p.threads.Delete(ctx, pr.SessionID)
}

// validateAnnotations resolves every annotation to a storage path and
// checks its case prefix. The first unauthorized citation aborts
// validation and is returned as the violation; annotations that cannot
// be resolved at all are dropped with a log line (they grant nothing).
func (p *Pipeline) validateAnnotations(ctx context.Context, anns []model.Annotation, pr *model.Principal) ([]model.Citation, *model.ForbiddenCaseError) {
	citations := make([]model.Citation, 0, len(anns))
	for _, ann := range anns {
		resolved, err := p.resolvePath(ctx, ann)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				log.Printf("citation %q dropped: unresolvable (session=%s)", ann.Title, pr.SessionID)
				continue
			}
			// Collaborator trouble during validation: fail closed on this
			// citation rather than surface it unchecked.
			log.Printf("citation %q dropped: validation error: %v", ann.Title, err)
			continue
		}
		if caseID, ok := model.CaseFromPath(resolved); !ok {
			return nil, &model.ForbiddenCaseError{Path: resolved}
		} else if !pr.Entitlement.Permits(caseID) {
			return nil, &model.ForbiddenCaseError{CaseID: caseID, Path: resolved}
		}
		citations = append(citations, model.Citation{
			Title:   ann.Title,
			Path:    resolved,
			Snippet: ann.Excerpt,
		})
	}
	return citations, nil
}

// resolvePath turns an annotation into a storage path. The annotation's
// own path claim is used as a hint only; the resolver verifies it
// against the store. Resolution here deliberately searches the whole
// store, not the entitled slice: an out-of-entitlement document must be
// *found* so the kill switch can fire on it, not silently missed.
func (p *Pipeline) resolvePath(ctx context.Context, ann model.Annotation) (string, error) {
	return p.resolver.FindPath(ctx, ann.Title, ann.Path, model.AllEntitlement())
}

// BuildCaseFilter renders the entitlement as a hard retrieval
// pre-filter. The all-cases entitlement omits the filter entirely.
func BuildCaseFilter(ent model.Entitlement) string {
	if ent.All() {
		return ""
	}
	cases := ent.Cases()
	if len(cases) == 0 {
		// Nothing is permitted; an impossible clause beats no clause.
		return "caseId eq 'none'"
	}
	clauses := make([]string, len(cases))
	for i, c := range cases {
		clauses[i] = fmt.Sprintf("caseId eq '%s'", c)
	}
	return strings.Join(clauses, " or ")
}

// buildInstructions is the advisory second layer: a natural-language
// restatement of the authorized set prepended to the generation request.
func buildInstructions(ent model.Entitlement) string {
	if ent.All() {
		return ""
	}
	return fmt.Sprintf(
		"You may only use material from these case numbers: %s. "+
			"Ignore any retrieved document whose case number is not in that list, "+
			"and never mention its contents.",
		ent)
}

// RefusalMessage is the fixed kill-switch response. It names the
// offending case so the caller understands why, without leaking content.
func RefusalMessage(caseID string, ent model.Entitlement) string {
	if caseID == "" {
		return fmt.Sprintf(
			"⚠️ Access Denied: the response referenced a document outside the case "+
				"filing system. Your authorized cases are %s. The response has been withheld.",
			ent)
	}
	return fmt.Sprintf(
		"⚠️ Access Denied: the response referenced Case %s, which you are not "+
			"authorized to view. Your authorized cases are %s. The response has been withheld.",
		caseID, ent)
}
