// Package criteria decides whether an account satisfies a mint criterion by
// running every configured check concurrently.
package criteria

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meroku/framecaster/internal/farcaster"
)

// Condition names reported in Result.Failed.
const (
	FollowChannel = "follow_channel"
	FollowUser    = "follow_user"
	CastText      = "cast_text"
)

const defaultCastsToCheck = 10

// Criterion lists the conditions an account must meet. Unset fields are not
// checked.
type Criterion struct {
	FollowChannel string
	FollowUser    *farcaster.UserRef
	CastText      string
	CastsToCheck  int
}

// Conditions returns the names of the conditions that are set.
func (c Criterion) Conditions() []string {
	var names []string
	if c.FollowChannel != "" {
		names = append(names, FollowChannel)
	}
	if c.FollowUser != nil && !c.FollowUser.IsZero() {
		names = append(names, FollowUser)
	}
	if c.CastText != "" {
		names = append(names, CastText)
	}
	return names
}

// Result is the outcome of an evaluation. Failed is sorted and empty when
// Eligible is true.
type Result struct {
	Eligible bool     `json:"eligible"`
	Failed   []string `json:"failed"`
}

// Graph answers the social-graph predicates the evaluator needs.
// *farcaster.Client satisfies it.
type Graph interface {
	Resolve(ctx context.Context, ref farcaster.UserRef) (int64, bool)
	FollowsChannel(ctx context.Context, channel string, user farcaster.UserRef) (bool, error)
	FollowsUser(ctx context.Context, fid int64, target farcaster.UserRef) (bool, error)
	HasCastContaining(ctx context.Context, fid int64, substr string, count int) (bool, error)
}

var _ Graph = (*farcaster.Client)(nil)

type Evaluator struct {
	graph Graph
}

func NewEvaluator(graph Graph) *Evaluator {
	return &Evaluator{graph: graph}
}

// Evaluate runs one check per set condition and waits for all of them; a
// failing check does not cancel the others. A check that errors counts as
// not satisfied.
func (e *Evaluator) Evaluate(ctx context.Context, fid int64, c Criterion) Result {
	var (
		mu     sync.Mutex
		failed = []string{}
		g      errgroup.Group
	)

	check := func(name string, fn func() (bool, error)) {
		g.Go(func() error {
			ok, err := fn()
			if err != nil {
				slog.Warn("criterion check failed", "condition", name, "fid", fid, "error", err)
			}
			if err != nil || !ok {
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return nil
		})
	}

	if c.FollowChannel != "" {
		check(FollowChannel, func() (bool, error) {
			return e.graph.FollowsChannel(ctx, c.FollowChannel, farcaster.ByFID(fid))
		})
	}
	if c.FollowUser != nil && !c.FollowUser.IsZero() {
		target := *c.FollowUser
		check(FollowUser, func() (bool, error) {
			// Usernames are matched by fid when they resolve, by name
			// otherwise.
			if target.FID <= 0 {
				if id, ok := e.graph.Resolve(ctx, target); ok {
					target = farcaster.ByFID(id)
				}
			}
			return e.graph.FollowsUser(ctx, fid, target)
		})
	}
	if c.CastText != "" {
		count := c.CastsToCheck
		if count <= 0 {
			count = defaultCastsToCheck
		}
		check(CastText, func() (bool, error) {
			return e.graph.HasCastContaining(ctx, fid, c.CastText, count)
		})
	}

	_ = g.Wait()

	slices.Sort(failed)
	return Result{Eligible: len(failed) == 0, Failed: failed}
}
