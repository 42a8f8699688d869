package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"whereabouts/internal/authz"
	"whereabouts/internal/daemon"
	"whereabouts/internal/database"
	"whereabouts/internal/storage"

	"github.com/google/uuid"
)

// Record is one person's state as captured in an archival snapshot.
type Record struct {
	PersonID     uuid.UUID `json:"personId"`
	Name         string    `json:"name"`
	Site         string    `json:"site"`
	CurrentSite  string    `json:"currentSite"`
	ServiceType  string    `json:"serviceType"`
	AlertStatus  string    `json:"alertStatus"`
	ReportStatus string    `json:"reportStatus"`
	Location     string    `json:"location"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Archiver writes periodic JSON snapshots of everyone's status to archival
// storage, one object per day.
type Archiver struct {
	logger  *slog.Logger
	db      *database.Database
	storage storage.Storage
}

func NewArchiver(logger *slog.Logger, db *database.Database, store storage.Storage) Archiver {
	return Archiver{logger: logger, db: db, storage: store}
}

// Run captures one snapshot.
func (a *Archiver) Run(ctx context.Context) error {
	persons, err := a.db.ListPersons(ctx, database.ListPersonsParams{})
	if err != nil {
		return fmt.Errorf("snapshot: failed to list persons: %w", err)
	}

	records := make([]Record, 0, len(persons))
	for _, p := range persons {
		record := Record{
			PersonID:     p.ID,
			Name:         p.Name,
			Site:         p.Site,
			ServiceType:  p.ServiceType,
			AlertStatus:  p.AlertStatus,
			ReportStatus: p.ReportStatus,
			Location:     p.Location,
			UpdatedAt:    p.UpdatedAt,
		}
		if g, err := a.db.GetSiteGroupOfPerson(ctx, p.ID); err == nil {
			if code, ok := authz.SiteCodeForGroupName(g.Name); ok {
				record.CurrentSite = code
			}
		}
		records = append(records, record)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal records: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s.json", time.Now().UTC().Format("2006-01-02"))
	if err := a.storage.Store(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("snapshot: failed to store %s: %w", key, err)
	}

	a.logger.InfoContext(ctx, "Snapshot archived", "key", key, "persons", len(records))
	return nil
}

// Task wraps the archiver as a supervised daemon running on the given
// interval.
func (a *Archiver) Task(interval time.Duration) daemon.Func {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.logger.Info("Daemon shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				if err := a.Run(ctx); err != nil {
					a.logger.Error("Snapshot run failed", "daemon", name, "error", err)
				}
			}
		}
	}
}
