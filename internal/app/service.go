package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"podnotes/api/internal/archive"
	"podnotes/api/internal/auth"
	"podnotes/api/internal/collab"
	"podnotes/api/internal/export"
	"podnotes/api/internal/outline"
	"podnotes/api/internal/rbac"
	"podnotes/api/internal/search"
	"podnotes/api/internal/store"
	"podnotes/api/internal/util"
)

// Identity is the caller of one request.
type Identity struct {
	UserID   string
	UserName string
	Role     rbac.Role
}

type dataStore interface {
	Ping(ctx context.Context) error
	ContainerFor(ctx context.Context, ownerType, ownerID string) (store.Container, error)
}

type Deps struct {
	Store  dataStore
	Engine *outline.Engine
	Hub    *collab.Hub
	Search *search.Service
	Export *export.Service
	// Archive is nil when snapshots are disabled.
	Archive *archive.Service
	// Signer is nil when tokens are disabled and identities come from headers.
	Signer *auth.Signer
	Logger zerolog.Logger
}

type Service struct {
	store   dataStore
	engine  *outline.Engine
	hub     *collab.Hub
	search  *search.Service
	export  *export.Service
	archive *archive.Service
	signer  *auth.Signer
	log     zerolog.Logger
}

func NewService(deps Deps) *Service {
	return &Service{
		store:   deps.Store,
		engine:  deps.Engine,
		hub:     deps.Hub,
		search:  deps.Search,
		export:  deps.Export,
		archive: deps.Archive,
		signer:  deps.Signer,
		log:     deps.Logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login issues a bearer token. Without a signer there is nothing to issue.
func (s *Service) Login(name, role string) (string, auth.Claims, error) {
	if s.signer == nil {
		return "", auth.Claims{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Token authentication is not configured", nil)
	}
	userName := strings.TrimSpace(name)
	if userName == "" {
		return "", auth.Claims{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	// Self-service logins are capped at editor.
	granted := rbac.Normalize(role)
	if role == "" || granted == rbac.RoleAdmin {
		granted = rbac.RoleEditor
	}
	return s.signer.Issue(util.NewID("usr"), userName, string(granted))
}

// Identify resolves the caller from a bearer token, or from the X-User-ID
// header when tokens are disabled.
func (s *Service) Identify(token, headerUser, headerRole string) (Identity, error) {
	if s.signer == nil {
		userID := strings.TrimSpace(headerUser)
		if userID == "" {
			return Identity{}, auth.ErrInvalidToken
		}
		role := rbac.RoleEditor
		if headerRole != "" {
			role = rbac.Normalize(headerRole)
		}
		return Identity{UserID: userID, UserName: userID, Role: role}, nil
	}
	if token == "" {
		return Identity{}, auth.ErrInvalidToken
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.Sub, UserName: claims.Name, Role: rbac.Normalize(claims.Role)}, nil
}

// Bootstrap returns the container for an owner, creating it on first use.
func (s *Service) Bootstrap(ctx context.Context, ownerType, ownerID string) (store.Container, error) {
	ownerType = strings.ToLower(strings.TrimSpace(ownerType))
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return store.Container{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is required", nil)
	}
	return s.engine.EnsureContainer(ctx, ownerType, ownerID)
}

func (s *Service) Lookup(ctx context.Context, ownerType, ownerID string) (store.Container, error) {
	return s.store.ContainerFor(ctx, ownerType, ownerID)
}

func (s *Service) Snapshot(ctx context.Context, containerID string) ([]outline.NodeView, error) {
	nodes, err := s.engine.Snapshot(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return outline.ViewsOf(nodes), nil
}

// Apply runs one operation submitted over HTTP and fans the diff out to
// every live session of the container.
func (s *Service) Apply(ctx context.Context, containerID string, who Identity, op outline.Operation) (outline.Result, error) {
	return s.hub.Commit(ctx, containerID, "", func(ctx context.Context) (outline.Result, error) {
		return s.engine.Apply(ctx, containerID, who.UserID, op)
	})
}

func (s *Service) Presence(containerID string) []collab.Presence {
	return s.hub.Presence(containerID)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func (s *Service) Reindex(ctx context.Context) {
	s.search.ReindexAll(ctx)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.export.Export(ctx, req)
}

// Archive commits the container's current outline as Markdown.
func (s *Service) Archive(ctx context.Context, containerID string, who Identity, title, message string) (archive.Commit, error) {
	if s.archive == nil {
		return archive.Commit{}, errArchiveDisabled
	}
	nodes, err := s.engine.Snapshot(ctx, containerID)
	if err != nil {
		return archive.Commit{}, err
	}
	if strings.TrimSpace(title) == "" {
		title = "Show notes"
	}
	snap := archive.Snapshot{
		Markdown: export.RenderMarkdown(title, export.BuildTree(nodes)),
		Nodes:    outline.ViewsOf(nodes),
	}
	author := who.UserName
	if author == "" {
		author = who.UserID
	}
	commit, err := s.archive.Save(containerID, snap, author, message)
	if err != nil {
		return archive.Commit{}, err
	}
	s.log.Info().Str("container_id", containerID).Str("hash", commit.Hash).Msg("outline archived")
	return commit, nil
}

func (s *Service) ArchiveHistory(ctx context.Context, containerID string, limit int) ([]archive.Commit, error) {
	if s.archive == nil {
		return nil, errArchiveDisabled
	}
	if _, err := s.engine.Snapshot(ctx, containerID); err != nil {
		return nil, err
	}
	return s.archive.History(containerID, limit)
}

func (s *Service) ArchivedMarkdown(containerID, hash string) (string, archive.Commit, error) {
	if s.archive == nil {
		return "", archive.Commit{}, errArchiveDisabled
	}
	return s.archive.Read(containerID, hash)
}
