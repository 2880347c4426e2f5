// Package reconcile implements the Reconciliation Engine (component C):
// the core set-reconciliation algorithm between an IdP snapshot and the
// local Directory Store, per spec.md §4.C.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/idp"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/logger"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

// Options configure one reconciliation call.
type Options struct {
	// DefaultGroupID, if set, takes precedence over DefaultGroupName for
	// resolving the group newly-created users are added to.
	DefaultGroupID *uuid.UUID
	// DefaultGroupName is the fallback lookup when DefaultGroupID is unset.
	DefaultGroupName string

	// AvatarOriginHints is the configurable substring list used to decide
	// whether an existing avatar URL is safe to overwrite (spec.md §9 Open
	// Question — kept as a configurable list rather than hardcoded).
	AvatarOriginHints []string
}

// Engine runs Reconcile against a store.DirectoryStore. It has no knowledge
// of the store's backing technology.
type Engine struct {
	Store store.DirectoryStore
}

// New returns an Engine backed by the given DirectoryStore.
func New(s store.DirectoryStore) *Engine {
	return &Engine{Store: s}
}

// Reconcile applies one IdP snapshot against one (team, authProvider)
// binding. It never returns an error for recoverable per-user failures —
// those accumulate in Report.Errors — and only returns a non-nil error for
// unrecoverable orchestration faults (none currently defined; reserved for
// future use, mirroring the teacher's always-non-nil-error-channel shape).
func (e *Engine) Reconcile(
	ctx context.Context, teamID, authProviderID uuid.UUID, snapshot []idp.SyncUser, opts Options,
) (*Report, error) {
	report := &Report{}

	// Safety preconditions, evaluated in order (spec.md §4.C).
	if len(snapshot) == 0 {
		report.addError("Provider returned empty user list - sync aborted to prevent mass suspension")
		return report, nil
	}
	team, err := e.Store.FindTeam(ctx, teamID)
	if err != nil {
		report.addError(fmt.Sprintf("Team %s not found", teamID))
		return report, nil
	}
	if _, err := e.Store.FindAuthProvider(ctx, authProviderID); err != nil {
		report.addError(fmt.Sprintf("Authentication provider %s not found", authProviderID))
		return report, nil
	}

	byProviderID := make(map[string]idp.SyncUser, len(snapshot))
	for _, su := range snapshot {
		byProviderID[su.ProviderID] = su
	}

	processed := make(map[string]struct{}, len(snapshot))

	e.reconcilePhase1(ctx, teamID, authProviderID, byProviderID, processed, opts, report)
	e.reconcilePhase2(ctx, teamID, authProviderID, team, snapshot, processed, opts, report)

	return report, nil
}

// reconcilePhase1 walks every existing UserAuthentication for this binding
// and matches/updates or orphans/suspends the linked User.
func (e *Engine) reconcilePhase1(
	ctx context.Context,
	teamID, authProviderID uuid.UUID,
	byProviderID map[string]idp.SyncUser,
	processed map[string]struct{},
	opts Options,
	report *Report,
) {
	existing, err := e.Store.FindAuthenticationsByProvider(ctx, authProviderID, teamID)
	if err != nil {
		report.addError(fmt.Sprintf("Failed to list existing authentications: %s", err))
		return
	}

	for _, row := range existing {
		providerID := row.Authentication.ProviderID
		processed[providerID] = struct{}{}
		user := row.User

		su, ok := byProviderID[providerID]
		if !ok {
			e.orphan(ctx, user, report)
			continue
		}
		e.matchAndUpdate(ctx, user, su, opts, report)
	}
}

// orphan handles a locally linked user absent from the current snapshot.
func (e *Engine) orphan(ctx context.Context, user models.User, report *Report) {
	if !user.IsSuspended() {
		if err := e.Store.SuspendUser(ctx, user.ID, nil); err != nil {
			report.addError(fmt.Sprintf("Failed to suspend user %s: %s", user.Email, err))
			return
		}
		report.Suspended++
		return
	}
	report.Unchanged++
}

// matchAndUpdate applies the attribute diff and, independently, clears any
// existing suspension — both counters may increment for the same user, per
// spec.md §9.
func (e *Engine) matchAndUpdate(ctx context.Context, user models.User, su idp.SyncUser, opts Options, report *Report) {
	diff, changed := diffAttrs(user, su, opts.AvatarOriginHints)

	if changed {
		if err := e.Store.UpdateUser(ctx, user.ID, diff); err != nil {
			report.addError(fmt.Sprintf("Failed to update user %s: %s", user.Email, err))
		} else {
			report.Updated++
		}
	} else {
		report.Unchanged++
	}

	if user.IsSuspended() {
		if err := e.Store.ClearSuspension(ctx, user.ID); err != nil {
			report.addError(fmt.Sprintf("Failed to update user %s: %s", user.Email, err))
		} else {
			report.Reactivated++
		}
	}
}

// reconcilePhase2 handles every snapshot entry not already processed in
// Phase 1: link-by-email or create.
func (e *Engine) reconcilePhase2(
	ctx context.Context,
	teamID, authProviderID uuid.UUID,
	team *models.Team,
	snapshot []idp.SyncUser,
	processed map[string]struct{},
	opts Options,
	report *Report,
) {
	for _, su := range snapshot {
		if _, done := processed[su.ProviderID]; done {
			continue
		}
		if su.Email == "" {
			report.addError(fmt.Sprintf("Skipping user %s: no email address", su.ProviderID))
			continue
		}

		existing, err := e.Store.FindUserByEmailCI(ctx, teamID, su.Email)
		if err == nil {
			e.link(ctx, authProviderID, *existing, su, opts, report)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			report.addError(fmt.Sprintf("Failed to create user %s: %s", su.Email, err))
			continue
		}
		e.create(ctx, teamID, authProviderID, team, su, opts, report)
	}
}

// link creates a UserAuthentication for an existing user matched by
// case-insensitive email (the "invited user" path).
func (e *Engine) link(
	ctx context.Context, authProviderID uuid.UUID, user models.User, su idp.SyncUser, opts Options, report *Report,
) {
	err := e.Store.WithTransaction(ctx, func(ctx context.Context, tx store.DirectoryStore) error {
		if _, err := tx.CreateAuthentication(ctx, store.NewAuthentication{
			UserID:                   user.ID,
			AuthenticationProviderID: authProviderID,
			ProviderID:               su.ProviderID,
		}); err != nil {
			return err
		}

		diff, changed := diffAttrs(user, su, opts.AvatarOriginHints)
		updated := false
		if changed {
			if err := tx.UpdateUser(ctx, user.ID, diff); err != nil {
				return err
			}
			updated = true
		}

		reactivated := false
		if user.IsSuspended() {
			if err := tx.ClearSuspension(ctx, user.ID); err != nil {
				return err
			}
			reactivated = true
		}

		if updated {
			report.Updated++
		}
		if reactivated {
			report.Reactivated++
		}
		if !updated && !reactivated {
			report.Unchanged++
		}
		return nil
	})
	if err != nil {
		report.addError(fmt.Sprintf("Failed to update user %s: %s", su.Email, err))
	}
}

// create inserts a brand-new User and its UserAuthentication for a snapshot
// entry that matched neither an existing authentication nor an existing
// email.
func (e *Engine) create(
	ctx context.Context,
	teamID, authProviderID uuid.UUID,
	team *models.Team,
	su idp.SyncUser,
	opts Options,
	report *Report,
) {
	role := team.DefaultUserRole
	if role == "" {
		role = "Member"
	}

	err := e.Store.WithTransaction(ctx, func(ctx context.Context, tx store.DirectoryStore) error {
		u, err := tx.CreateUser(ctx, store.NewUser{
			TeamID:      teamID,
			Email:       su.Email,
			DisplayName: su.Name,
			AvatarURL:   su.AvatarURL,
			Role:        role,
		})
		if err != nil {
			return err
		}

		if _, err := tx.CreateAuthentication(ctx, store.NewAuthentication{
			UserID:                   u.ID,
			AuthenticationProviderID: authProviderID,
			ProviderID:               su.ProviderID,
		}); err != nil {
			return err
		}

		group, err := resolveGroup(ctx, tx, teamID, opts)
		if err != nil {
			// Missing default group is logged and ignored, not fatal
			// (spec.md §4.C).
			logger.Logger(ctx).WithError(err).Warn("default group not resolvable, skipping group membership")
			return nil
		}
		if group != nil {
			if err := tx.CreateGroupMembership(ctx, group.ID, u.ID, models.GroupPermissionMember); err != nil {
				return err
			}
			report.AddedToGroup++
		}
		return nil
	})
	if err != nil {
		report.addError(fmt.Sprintf("Failed to create user %s: %s", su.Email, err))
		return
	}
	report.Created++
}

// resolveGroup looks up the default group by ID (preferred) or name
// (fallback). It returns (nil, nil) when neither is configured, and the
// lookup error when the configured group cannot be found; the caller logs
// that error and skips the membership instead of failing the user.
func resolveGroup(ctx context.Context, tx store.DirectoryStore, teamID uuid.UUID, opts Options) (*models.Group, error) {
	if opts.DefaultGroupID != nil {
		g, err := tx.FindGroupByIDInTeam(ctx, teamID, *opts.DefaultGroupID)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	if opts.DefaultGroupName != "" {
		g, err := tx.FindGroupByNameInTeam(ctx, teamID, opts.DefaultGroupName)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, nil
}

// diffAttrs computes the attribute-diff rules of spec.md §4.C: name replaced
// on inequality, email replaced case-insensitively (adopting IdP casing),
// avatar replaced only when empty or recognizably IdP-sourced.
func diffAttrs(user models.User, su idp.SyncUser, avatarOriginHints []string) (store.UserAttrs, bool) {
	var attrs store.UserAttrs
	changed := false

	if su.Name != "" && su.Name != user.DisplayName {
		attrs.DisplayName = &su.Name
		changed = true
	}

	if su.Email != "" && !strings.EqualFold(su.Email, user.Email) {
		attrs.Email = &su.Email
		changed = true
	}

	if su.AvatarURL != "" && avatarReplaceable(user.AvatarURL, avatarOriginHints) {
		attrs.AvatarURL = &su.AvatarURL
		changed = true
	}

	return attrs, changed
}

func avatarReplaceable(existing string, hints []string) bool {
	if existing == "" {
		return true
	}
	lower := strings.ToLower(existing)
	for _, h := range hints {
		if h != "" && strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
