package service

import (
    "context"
    "encoding/csv"
    "errors"
    "io"
    "strings"

    "github.com/badoux/checkmail"
    "github.com/sirupsen/logrus"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/logger"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// AllowlistService guards the set of employees that campaigns may target.
type AllowlistService struct {
    Employees   repository.EmployeeStore
    DenyDomains []string
    Log         logrus.FieldLogger
}

func NewAllowlistService(store repository.EmployeeStore, denyDomains []string, log logrus.FieldLogger) *AllowlistService {
    normalized := make([]string, 0, len(denyDomains))
    for _, d := range denyDomains {
        if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
            normalized = append(normalized, d)
        }
    }
    return &AllowlistService{Employees: store, DenyDomains: normalized, Log: log}
}

// ImportResult reports what an allowlist write kept and skipped.
type ImportResult struct {
    Imported int      `json:"imported"`
    Rejected []string `json:"rejected"`
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
    return strings.ToLower(strings.TrimSpace(email))
}

func emailDomain(email string) string {
    at := strings.LastIndex(email, "@")
    if at < 0 || at == len(email)-1 {
        return ""
    }
    return strings.ToLower(email[at+1:])
}

// IsDomainAllowed reports whether email has a domain outside the deny-list.
// Addresses without a domain are never allowed.
func (s *AllowlistService) IsDomainAllowed(email string) bool {
    domain := emailDomain(email)
    if domain == "" {
        return false
    }
    for _, denied := range s.DenyDomains {
        if domain == denied {
            return false
        }
    }
    return true
}

func (s *AllowlistService) List(ctx context.Context) ([]model.Employee, error) {
    return s.Employees.ListAll(ctx)
}

func (s *AllowlistService) Lookup(ctx context.Context, emails []string) ([]model.Employee, error) {
    return s.Employees.Lookup(ctx, emails)
}

// Upsert stores valid entries and skips the rest. Entries without an email
// are ignored; malformed or deny-listed addresses are reported as rejected.
func (s *AllowlistService) Upsert(ctx context.Context, entries []model.Employee) (*ImportResult, error) {
    result := &ImportResult{Rejected: []string{}}
    byEmail := make(map[string]int)
    accepted := make([]model.Employee, 0, len(entries))

    for _, e := range entries {
        email := NormalizeEmail(e.Email)
        if email == "" {
            continue
        }
        if err := checkmail.ValidateFormat(email); err != nil || !s.IsDomainAllowed(email) {
            s.Log.WithField("email", logger.RedactEmail(email)).Warn("rejected allowlist entry")
            result.Rejected = append(result.Rejected, email)
            continue
        }

        e := model.Employee{
            Email:      email,
            Name:       strings.TrimSpace(e.Name),
            Department: strings.TrimSpace(e.Department),
        }
        if i, dup := byEmail[email]; dup {
            accepted[i] = e
            continue
        }
        byEmail[email] = len(accepted)
        accepted = append(accepted, e)
    }

    if len(accepted) > 0 {
        if err := s.Employees.Upsert(ctx, accepted); err != nil {
            return nil, err
        }
    }
    result.Imported = len(accepted)
    return result, nil
}

// ImportCSV reads "email,name,department" records. There is no header row;
// blank lines are skipped, quoted fields may contain commas and missing
// columns default to empty.
func (s *AllowlistService) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
    reader := csv.NewReader(r)
    reader.FieldsPerRecord = -1
    reader.TrimLeadingSpace = true

    var entries []model.Employee
    for {
        record, err := reader.Read()
        if errors.Is(err, io.EOF) {
            break
        }
        if err != nil {
            var parseErr *csv.ParseError
            if errors.As(err, &parseErr) {
                return nil, appErrors.NewValidation("invalid CSV", parseErr.Error())
            }
            return nil, err
        }
        for len(record) < 3 {
            record = append(record, "")
        }
        entries = append(entries, model.Employee{
            Email:      strings.TrimSpace(record[0]),
            Name:       strings.TrimSpace(record[1]),
            Department: strings.TrimSpace(record[2]),
        })
    }
    return s.Upsert(ctx, entries)
}
