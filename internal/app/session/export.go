package session

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"gamezone/internal/providers/minio"

	"go.uber.org/zap"
)

const exportLinkTTL = time.Hour

type ObjectStore interface {
	UploadFromReader(ctx context.Context, reader io.Reader, objectName, contentType string, size int64) (*minio.UploadedFile, error)
	GeneratePresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type ExportResult struct {
	ObjectName string    `json:"object_name"`
	URL        string    `json:"url"`
	Rows       int       `json:"rows"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Exporter writes the grouped visit history as CSV into object storage.
type Exporter struct {
	service Service
	store   ObjectStore
	logger  *zap.SugaredLogger
}

func NewExporter(service Service, store ObjectStore, logger *zap.Logger) *Exporter {
	return &Exporter{service: service, store: store, logger: logger.Sugar()}
}

func (e *Exporter) Export(ctx context.Context, view View) (*ExportResult, error) {
	groups, err := e.service.ListGroups(ctx, view)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, groups); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	now := e.service.Now()
	objectName := minio.ExportObjectName(now)
	if _, err := e.store.UploadFromReader(ctx, bytes.NewReader(buf.Bytes()), objectName, "text/csv", int64(buf.Len())); err != nil {
		return nil, storageErr("upload export", err)
	}

	link, err := e.store.GeneratePresignedURL(ctx, objectName, exportLinkTTL)
	if err != nil {
		return nil, storageErr("sign export", err)
	}

	e.logger.Infow("Sessions exported", "object_name", objectName, "view", view, "rows", len(groups))
	return &ExportResult{
		ObjectName: objectName,
		URL:        link,
		Rows:       len(groups),
		ExpiresAt:  now.Add(exportLinkTTL),
	}, nil
}

var csvHeader = []string{
	"group_id", "current_session_id", "game_id", "status", "players",
	"visitor_name", "visitor_phone", "visitor_email",
	"started_at", "ends_at", "exit_time", "slots",
}

func WriteCSV(w io.Writer, groups []GroupedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, g := range groups {
		exit := ""
		if g.ExitTime != nil {
			exit = g.ExitTime.UTC().Format(time.RFC3339)
		}
		record := []string{
			g.GroupID,
			g.CurrentSessionID,
			g.GameID,
			string(g.Status),
			strconv.Itoa(g.Players),
			g.VisitorName,
			g.VisitorPhone,
			g.VisitorEmail,
			g.StartedAt.UTC().Format(time.RFC3339),
			g.EndsAt.UTC().Format(time.RFC3339),
			exit,
			strconv.Itoa(len(g.Slots)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
