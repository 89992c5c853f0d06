// Package membership manages who may mutate a project. Per (user, project)
// pair the state runs NONE -> REQUESTED -> MEMBER or NONE -> INVITED ->
// MEMBER, and MEMBER -> NONE via leave. A project that loses its last
// member is destroyed outright.
package membership

import (
	"context"
	"fmt"

	"gridloop/core/apperr"
	"gridloop/logger"
	"gridloop/model"
	"gridloop/repository"
)

// AvatarStore removes stored avatar objects when an account is deleted.
type AvatarStore interface {
	RemoveAvatar(ctx context.Context, key string) error
}

// GridLocks releases per-project grid state once a project is destroyed.
type GridLocks interface {
	ReleaseProject(projectID string)
}

// Engine coordinates membership transitions against the repositories.
type Engine struct {
	repos   *repository.Repositories
	avatars AvatarStore
	grid    GridLocks
}

// NewEngine creates a membership engine. grid may be nil.
func NewEngine(repos *repository.Repositories, avatars AvatarStore, grid GridLocks) *Engine {
	return &Engine{repos: repos, avatars: avatars, grid: grid}
}

// ProjectParams are the fields of a new project.
type ProjectParams struct {
	Name          string
	Tempo         int
	TimeSignature string
	Description   string
}

// CreateProject creates a project with the creator as its first member.
func (e *Engine) CreateProject(ctx context.Context, creator *model.User, params ProjectParams) (*model.Project, error) {
	project := &model.Project{
		Name:          params.Name,
		Tempo:         params.Tempo,
		TimeSignature: params.TimeSignature,
		Description:   params.Description,
		Invited:       model.StringList{},
		Requests:      model.StringList{},
	}
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.Create(ctx, project); err != nil {
			return apperr.Persistence("create project", err)
		}
		if err := tx.Projects.AddUser(ctx, project.ID, creator.ID); err != nil {
			return apperr.Persistence("add creator to project", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("project created",
		logger.String("project", project.ID),
		logger.String("creator", creator.ID))
	return project, nil
}

// Authorize resolves the project and verifies the acting user is a member.
// Used as the gate in front of every project-mutating operation.
func (e *Engine) Authorize(ctx context.Context, projectID, userID string) (*model.Project, error) {
	project, err := e.repos.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, apperr.Persistence("load project", err)
	}
	if project == nil {
		return nil, apperr.NotFound("project", projectID)
	}
	isMember, err := e.repos.Projects.HasUser(ctx, projectID, userID)
	if err != nil {
		return nil, apperr.Persistence("check membership", err)
	}
	if !isMember {
		return nil, fmt.Errorf("user is not a member of this project: %w", apperr.ErrAuthorization)
	}
	return project, nil
}

// Invite adds inviteeID to the project's pending invites. Only reachable by
// an existing member (the transport gate enforces that). Inviting a current
// member fails; re-inviting a pending invitee is a no-op.
func (e *Engine) Invite(ctx context.Context, project *model.Project, inviteeID string) (*model.Project, error) {
	invitee, err := e.repos.Users.GetByID(ctx, inviteeID)
	if err != nil {
		return nil, apperr.Persistence("load invitee", err)
	}
	if invitee == nil {
		return nil, apperr.NotFound("user", inviteeID)
	}

	isMember, err := e.repos.Projects.HasUser(ctx, project.ID, inviteeID)
	if err != nil {
		return nil, apperr.Persistence("check membership", err)
	}
	if isMember {
		return nil, fmt.Errorf("user %s: %w", inviteeID, apperr.ErrAlreadyMember)
	}

	if !project.Invited.Contains(inviteeID) {
		project.Invited = append(project.Invited, inviteeID)
		if err := e.repos.Projects.Update(ctx, project); err != nil {
			return nil, apperr.Persistence("save project", err)
		}
	}
	return project, nil
}

// RequestAccess adds the user to the project's pending requests.
// Self-service; requires no existing membership. Repeat requests are no-ops.
func (e *Engine) RequestAccess(ctx context.Context, project *model.Project, userID string) (*model.Project, error) {
	isMember, err := e.repos.Projects.HasUser(ctx, project.ID, userID)
	if err != nil {
		return nil, apperr.Persistence("check membership", err)
	}
	if isMember {
		return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrAlreadyMember)
	}

	if !project.Requests.Contains(userID) {
		project.Requests = append(project.Requests, userID)
		if err := e.repos.Projects.Update(ctx, project); err != nil {
			return nil, apperr.Persistence("save project", err)
		}
	}
	return project, nil
}

// AcceptRequest promotes a pending requester to member. Only reachable by
// an existing member.
func (e *Engine) AcceptRequest(ctx context.Context, project *model.Project, requesterID string) (*model.Project, error) {
	if !project.Requests.Contains(requesterID) {
		return nil, fmt.Errorf("user %s: %w", requesterID, apperr.ErrNotRequested)
	}
	return e.admit(ctx, project, requesterID)
}

// AcceptInvite lets an invited user join. Self-service by the invitee.
func (e *Engine) AcceptInvite(ctx context.Context, project *model.Project, userID string) (*model.Project, error) {
	if !project.Invited.Contains(userID) {
		return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrNotInvited)
	}
	return e.admit(ctx, project, userID)
}

// admit clears the user from both pending sets and adds the membership row,
// in one transaction.
func (e *Engine) admit(ctx context.Context, project *model.Project, userID string) (*model.Project, error) {
	project.Requests = project.Requests.Without(userID)
	project.Invited = project.Invited.Without(userID)

	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.Update(ctx, project); err != nil {
			return apperr.Persistence("save project", err)
		}
		if err := tx.Projects.AddUser(ctx, project.ID, userID); err != nil {
			return apperr.Persistence("add member", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("member admitted",
		logger.String("project", project.ID),
		logger.String("user", userID))
	return project, nil
}

// Leave removes the user's membership. When the last member leaves, the
// project and everything under it is destroyed. Returns whether the project
// was destroyed.
func (e *Engine) Leave(ctx context.Context, project *model.Project, userID string) (bool, error) {
	destroyed := false
	err := e.repos.Transact(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.RemoveUser(ctx, project.ID, userID); err != nil {
			return apperr.Persistence("remove member", err)
		}
		remaining, err := tx.Projects.CountUsers(ctx, project.ID)
		if err != nil {
			return apperr.Persistence("count members", err)
		}
		if remaining == 0 {
			if err := tx.Projects.Destroy(ctx, project.ID); err != nil {
				return apperr.Persistence("destroy orphaned project", err)
			}
			destroyed = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if destroyed && e.grid != nil {
		e.grid.ReleaseProject(project.ID)
	}

	logger.Info("member left",
		logger.String("project", project.ID),
		logger.String("user", userID),
		logger.Bool("projectDestroyed", destroyed))
	return destroyed, nil
}

// RemoveUser deletes an account: the user's messages, every membership
// (destroying projects orphaned along the way), the stored avatar if it is
// not the default, then the user record.
func (e *Engine) RemoveUser(ctx context.Context, user *model.User) error {
	if err := e.repos.Messages.DeleteByUser(ctx, user.ID); err != nil {
		return apperr.Persistence("delete user messages", err)
	}

	projects, err := e.repos.Users.GetProjects(ctx, user.ID)
	if err != nil {
		return apperr.Persistence("load user projects", err)
	}
	for i := range projects {
		if _, err := e.Leave(ctx, &projects[i], user.ID); err != nil {
			return err
		}
	}

	if !user.HasDefaultAvatar() && e.avatars != nil {
		if err := e.avatars.RemoveAvatar(ctx, user.Avatar); err != nil {
			logger.Warn("failed to remove avatar on account deletion",
				logger.ErrorField(err),
				logger.String("user", user.ID))
		}
	}

	if err := e.repos.Users.Delete(ctx, user.ID); err != nil {
		return apperr.Persistence("delete user", err)
	}

	logger.Info("user removed", logger.String("user", user.ID))
	return nil
}
