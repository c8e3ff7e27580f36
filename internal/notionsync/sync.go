// Package notionsync mirrors ledger client summaries into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/jomei/notionapi"
)

// Options controls a sync run.
type Options struct {
	// DryRun logs intended changes without calling Notion write APIs.
	DryRun bool
	// Prune archives pages whose client is no longer in the ledger,
	// e.g. records absorbed by reconciliation.
	Prune bool
}

// Stats counts what a sync did.
type Stats struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncClients upserts one Notion page per ledger client, keyed by the
// "Client ID" property. Individual page failures are logged and counted;
// only listing failures abort the run. nw may be nil.
func SyncClients(ctx context.Context, src ClientSource, nw NetWorthSource, notionClient NotionService, notionDBID string, opts Options) (Stats, error) {
	log := logger.FromContext(ctx)
	var stats Stats

	summaries, err := src.Summaries(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list clients: %w", err)
	}
	log.Info().Int("client_count", len(summaries)).Bool("dry_run", opts.DryRun).Msg("Starting client sync to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return stats, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	existing := make(map[domain.ClientKey]string, len(pages))
	for _, page := range pages {
		if key := extractClientKey(page); key != "" {
			if _, dup := existing[key]; !dup {
				existing[key] = string(page.ID)
			}
		}
	}

	valid := make(map[domain.ClientKey]bool, len(summaries))
	for _, s := range summaries {
		valid[s.ClientID] = true
		clog := log.With().Str("client_key", string(s.ClientID)).Logger()

		var breakdown *domain.NetWorthSummary
		if nw != nil {
			summary, err := nw.Compute(ctx, s.ClientID)
			if err != nil {
				clog.Warn().Err(err).Msg("Net worth unavailable, syncing totals only")
			}
			if summary.ClientID != "" {
				breakdown = &summary
			}
		}
		props := ClientToNotionProperties(s, breakdown)

		pageID, found := existing[s.ClientID]
		switch {
		case opts.DryRun && found:
			clog.Info().Str("page_id", pageID).Msg("[DRY RUN] Would update client page")
			stats.Updated++
		case opts.DryRun:
			clog.Info().Msg("[DRY RUN] Would create client page")
			stats.Created++
		case found:
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				clog.Warn().Err(err).Str("page_id", pageID).Msg("Failed to update client page")
				stats.Failed++
				continue
			}
			stats.Updated++
		default:
			page, err := notionClient.CreatePage(ctx, notionDBID, props)
			if err != nil {
				clog.Warn().Err(err).Msg("Failed to create client page")
				stats.Failed++
				continue
			}
			clog.Debug().Str("page_id", string(page.ID)).Msg("Created client page")
			stats.Created++
		}
	}

	if opts.Prune {
		for _, page := range pages {
			key := extractClientKey(page)
			if valid[key] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("client_key", string(key)).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale client page")
				stats.Archived++
				continue
			}
			if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
				log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale client page")
				stats.Failed++
				continue
			}
			stats.Archived++
		}
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Client sync completed")

	return stats, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
