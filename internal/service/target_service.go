package service

import (
    "context"
    "sort"
    "strconv"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// TargetService owns the recipients of each campaign and their tokens.
type TargetService struct {
    Targets   repository.TargetStore
    Allowlist *AllowlistService
    Tokens    TokenGenerator
}

// Resolve validates a recipient list against the deny-list and the allowlist
// and returns the matching employees in input order. Nothing is written.
func (s *TargetService) Resolve(ctx context.Context, emails []string) ([]model.Employee, error) {
    seen := make(map[string]bool, len(emails))
    normalized := make([]string, 0, len(emails))
    for _, e := range emails {
        e = NormalizeEmail(e)
        if e == "" || seen[e] {
            continue
        }
        seen[e] = true
        normalized = append(normalized, e)
    }
    if len(normalized) == 0 {
        return nil, appErrors.NewValidation("recipients are required and must be on the allowlist")
    }

    var forbidden []string
    forbiddenSeen := make(map[string]bool)
    for _, e := range normalized {
        if s.Allowlist.IsDomainAllowed(e) {
            continue
        }
        item := emailDomain(e)
        if item == "" {
            item = e
        }
        if !forbiddenSeen[item] {
            forbiddenSeen[item] = true
            forbidden = append(forbidden, item)
        }
    }
    if len(forbidden) > 0 {
        sort.Strings(forbidden)
        return nil, appErrors.NewValidation("recipients contain forbidden domains", forbidden...)
    }

    found, err := s.Allowlist.Lookup(ctx, normalized)
    if err != nil {
        return nil, err
    }
    byEmail := make(map[string]model.Employee, len(found))
    for _, e := range found {
        byEmail[e.Email] = e
    }

    var missing []string
    resolved := make([]model.Employee, 0, len(normalized))
    for _, e := range normalized {
        emp, ok := byEmail[e]
        if !ok {
            missing = append(missing, e)
            continue
        }
        resolved = append(resolved, emp)
    }
    if len(missing) > 0 {
        return nil, appErrors.NewValidation("all recipients must exist in the allowlist", missing...)
    }
    return resolved, nil
}

// Replace swaps the campaign's targets for employees, each with a fresh
// token. Tokens issued earlier for the campaign stop resolving.
func (s *TargetService) Replace(ctx context.Context, campaignID int, employees []model.Employee) ([]model.CampaignTarget, error) {
    targets := make([]model.CampaignTarget, len(employees))
    for i, e := range employees {
        targets[i] = model.CampaignTarget{
            CampaignID: campaignID,
            Email:      e.Email,
            Name:       e.Name,
            Department: e.Department,
            Token:      s.Tokens.Issue(e.Email + strconv.Itoa(campaignID)),
        }
    }
    if err := s.Targets.ReplaceTargets(ctx, campaignID, targets); err != nil {
        return nil, err
    }
    return targets, nil
}

// SetTargets validates emails and replaces the campaign's targets atomically.
func (s *TargetService) SetTargets(ctx context.Context, campaignID int, emails []string) ([]model.CampaignTarget, error) {
    employees, err := s.Resolve(ctx, emails)
    if err != nil {
        return nil, err
    }
    return s.Replace(ctx, campaignID, employees)
}

func (s *TargetService) ListTargets(ctx context.Context, campaignID int) ([]model.CampaignTarget, error) {
    return s.Targets.ListByCampaign(ctx, campaignID)
}

func (s *TargetService) CountDelivered(ctx context.Context, campaignID int) (int, error) {
    return s.Targets.CountDelivered(ctx, campaignID)
}

func (s *TargetService) FindByToken(ctx context.Context, token string) (*model.CampaignTarget, error) {
    return s.Targets.FindByToken(ctx, token)
}
