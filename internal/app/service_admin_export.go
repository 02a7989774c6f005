package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/export"
	"kgr/api/internal/store"
)

const (
	ExportCSV  = "csv"
	ExportJSON = "json"
)

var userCSVHeader = []string{"Name", "Username", "Role", "Articles", "Views", "Banned", "Joined"}

type UserExport struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Articles  int       `json:"articles"`
	Views     int64     `json:"views"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"createdAt"`
}

type ArticleExport struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AuthorID  string    `json:"authorId"`
	Author    string    `json:"author"`
	Status    string    `json:"status"`
	Tags      []string  `json:"tags"`
	CoAuthors []string  `json:"coAuthors"`
	Views     int64     `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DataExport is the full JSON dump offered to admins.
type DataExport struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Users      []UserExport    `json:"users"`
	Articles   []ArticleExport `json:"articles"`
}

// AdminExport builds a download of the user table as CSV, or of users and
// articles together as JSON. An empty format means CSV.
func (s *Service) AdminExport(ctx context.Context, caller Caller, format string) (*export.Result, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportCSV
	}
	if format != ExportCSV && format != ExportJSON {
		return nil, domainError(http.StatusBadRequest, "INVALID_REQUEST", "format must be csv or json", nil)
	}

	dump, err := s.collectExport(ctx)
	if err != nil {
		return nil, err
	}
	day := dump.ExportedAt.Format("2006-01-02")

	var result *export.Result
	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		result = &export.Result{Data: data, Filename: "kgr-export-" + day + ".json", MimeType: "application/json"}
	default:
		data, err := usersCSV(dump.Users)
		if err != nil {
			return nil, err
		}
		result = &export.Result{Data: data, Filename: "kgr-users-" + day + ".csv", MimeType: "text/csv; charset=utf-8"}
	}
	s.logger.Info("admin export",
		zap.String("format", format),
		zap.Int("users", len(dump.Users)),
		zap.Int("articles", len(dump.Articles)),
		zap.String("by", caller.UserID),
	)
	return result, nil
}

func (s *Service) collectExport(ctx context.Context) (DataExport, error) {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return DataExport{}, err
	}
	articles, err := s.store.ListAll(ctx)
	if err != nil {
		return DataExport{}, err
	}

	counts := make(map[string]int, len(profiles))
	views := make(map[string]int64, len(profiles))
	dump := DataExport{
		ExportedAt: s.now().UTC(),
		Users:      make([]UserExport, 0, len(profiles)),
		Articles:   make([]ArticleExport, 0, len(articles)),
	}
	for _, a := range articles {
		counts[a.UserID]++
		views[a.UserID] += a.Views
		dump.Articles = append(dump.Articles, articleExport(a))
	}
	for _, p := range profiles {
		dump.Users = append(dump.Users, UserExport{
			ID:        p.ID,
			Name:      p.DisplayName(),
			Username:  p.Username,
			Role:      p.Role,
			Articles:  counts[p.ID],
			Views:     views[p.ID],
			Banned:    p.Banned,
			CreatedAt: p.CreatedAt,
		})
	}
	return dump, nil
}

func articleExport(a store.Article) ArticleExport {
	tags, coAuthors := a.Tags, a.CoAuthors
	if tags == nil {
		tags = []string{}
	}
	if coAuthors == nil {
		coAuthors = []string{}
	}
	return ArticleExport{
		ID:        a.ID,
		Title:     a.Title,
		AuthorID:  a.UserID,
		Author:    a.Author,
		Status:    a.Status,
		Tags:      tags,
		CoAuthors: coAuthors,
		Views:     a.Views,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func usersCSV(users []UserExport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(userCSVHeader); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	for _, u := range users {
		record := []string{
			u.Name,
			u.Username,
			u.Role,
			strconv.Itoa(u.Articles),
			strconv.FormatInt(u.Views, 10),
			strconv.FormatBool(u.Banned),
			u.CreatedAt.UTC().Format("2006-01-02"),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
