package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"clinicslots/internal/auth"
	"clinicslots/internal/domain"
	"clinicslots/internal/store"
)

type RegisterProviderInput struct {
	Username       string
	Name           string
	Specialization string
	Requester      auth.Principal
}

// RegisterProvider adds a provider to the directory. A doctor may register
// their own username; an admin may register anyone.
func (s *Service) RegisterProvider(ctx context.Context, in RegisterProviderInput) (domain.Provider, error) {
	username, name, err := registration(in.Username, in.Name)
	if err != nil {
		return domain.Provider{}, err
	}
	if !mayRegister(in.Requester, username, auth.RoleDoctor) {
		return domain.Provider{}, ErrUnauthorized
	}

	p, err := s.repo.CreateProvider(ctx, domain.Provider{
		Username:       username,
		Name:           name,
		Specialization: strings.TrimSpace(in.Specialization),
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.Provider{}, ErrAlreadyRegistered
	}
	if err != nil {
		return domain.Provider{}, classify("register provider", err)
	}

	s.log.Info("provider registered",
		slog.String("provider_id", p.ID.String()),
		slog.String("username", p.Username),
		slog.String("requester", in.Requester.Username),
	)
	return p, nil
}

type RegisterSubjectInput struct {
	Username  string
	Name      string
	Requester auth.Principal
}

// RegisterSubject adds a subject to the directory. A patient may register
// their own username; an admin may register anyone.
func (s *Service) RegisterSubject(ctx context.Context, in RegisterSubjectInput) (domain.Subject, error) {
	username, name, err := registration(in.Username, in.Name)
	if err != nil {
		return domain.Subject{}, err
	}
	if !mayRegister(in.Requester, username, auth.RolePatient) {
		return domain.Subject{}, ErrUnauthorized
	}

	sub, err := s.repo.CreateSubject(ctx, domain.Subject{Username: username, Name: name})
	if errors.Is(err, store.ErrConflict) {
		return domain.Subject{}, ErrAlreadyRegistered
	}
	if err != nil {
		return domain.Subject{}, classify("register subject", err)
	}

	s.log.Info("subject registered",
		slog.String("subject_id", sub.ID.String()),
		slog.String("username", sub.Username),
		slog.String("requester", in.Requester.Username),
	)
	return sub, nil
}

// ListProviders is open to any caller so clients can find who to book with.
func (s *Service) ListProviders(ctx context.Context, page, size int) ([]domain.Provider, error) {
	p, err := newPage(page, size)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListProviders(ctx, p)
	if err != nil {
		return nil, classify("list providers", err)
	}
	s.log.Debug("providers listed", slog.Int("page", page), slog.Int("count", len(rows)))
	return rows, nil
}

// ListSubjects is limited to doctors and admins.
func (s *Service) ListSubjects(ctx context.Context, page, size int, requester auth.Principal) ([]domain.Subject, error) {
	p, err := newPage(page, size)
	if err != nil {
		return nil, err
	}
	if !requester.HasRole(auth.RoleDoctor) && !requester.HasRole(auth.RoleAdmin) {
		return nil, ErrUnauthorized
	}
	rows, err := s.repo.ListSubjects(ctx, p)
	if err != nil {
		return nil, classify("list subjects", err)
	}
	s.log.Debug("subjects listed", slog.Int("page", page), slog.Int("count", len(rows)))
	return rows, nil
}

func registration(username, name string) (string, string, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" {
		return "", "", validationError("username is required")
	}
	if name == "" {
		return "", "", validationError("name is required")
	}
	return username, name, nil
}

func mayRegister(requester auth.Principal, username, role string) bool {
	if requester.HasRole(auth.RoleAdmin) {
		return true
	}
	return requester.HasRole(role) && auth.Authorize(requester, username) == nil
}
