// Command trackerctl exports, imports and purges the tracker's store
// using the same configuration as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"link-tracker/internal/config"
	"link-tracker/internal/domain"
	"link-tracker/internal/repository"
	redisCache "link-tracker/internal/repository/redis"
	"link-tracker/internal/store"
)

const usage = "usage: trackerctl <export|import -file FILE|purge -yes>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	// The server caches slug lookups in Redis; purge has to flush them too
	var cache linkCache
	if cfg.Redis.Enabled {
		client, err := redisCache.InitRedis(ctx, cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, cached links will not be flushed: %v", err)
		} else {
			defer client.Close()
			cache = redisCache.NewCache(client, cfg.Redis.CacheTTL)
		}
	}

	err = runCommand(ctx, st, cache, os.Args[1], os.Args[2:], os.Stdout)
	st.Close()
	if err != nil {
		log.Fatal(err)
	}
}

// linkCache is the part of the Redis link cache purge needs
type linkCache interface {
	Clear(ctx context.Context) error
}

// runCommand dispatches one subcommand. cache may be nil.
func runCommand(ctx context.Context, st *store.Store, cache linkCache, name string, args []string, out io.Writer) error {
	switch name {
	case "export":
		return doExport(ctx, st, out)

	case "import":
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		file := fs.String("file", "", "JSON file produced by export")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return errors.New("import: -file is required")
		}
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", *file, err)
		}
		defer f.Close()
		return doImport(ctx, st, f, out)

	case "purge":
		fs := flag.NewFlagSet("purge", flag.ContinueOnError)
		yes := fs.Bool("yes", false, "confirm deleting every link and visit")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if !*yes {
			return errors.New("purge: refusing to run without -yes")
		}
		return doPurge(ctx, st, cache, out)

	default:
		return errors.New(usage)
	}
}

// exportedLink is one record of the export format
type exportedLink struct {
	domain.Link
	Visits []*domain.Visit `json:"visits"`
}

func doExport(ctx context.Context, st *store.Store, out io.Writer) error {
	links, err := st.Links.List(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	records := make([]exportedLink, 0, len(links))
	for _, link := range links {
		visits, err := st.Visits.ListByLink(ctx, link.ID)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		records = append(records, exportedLink{Link: *link, Visits: visits})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}

	return nil
}

// doImport restores an export. Links whose slug already exists are skipped
// together with their visits; IDs are reassigned by the store.
func doImport(ctx context.Context, st *store.Store, in io.Reader, out io.Writer) error {
	var records []exportedLink
	if err := json.NewDecoder(in).Decode(&records); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	imported, skipped := 0, 0
	for _, rec := range records {
		link := rec.Link
		err := st.Links.Create(ctx, &link)
		if errors.Is(err, domain.ErrSlugConflict) {
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", rec.Slug, err)
		}

		for _, v := range rec.Visits {
			v.LinkID = link.ID
			if err := st.Visits.Create(ctx, v); err != nil {
				return fmt.Errorf("failed to import visit of %s: %w", rec.Slug, err)
			}
		}
		imported++
	}

	fmt.Fprintf(out, "Imported %d links, skipped %d existing\n", imported, skipped)
	return nil
}

func doPurge(ctx context.Context, st *store.Store, cache linkCache, out io.Writer) error {
	err := st.Tx.WithinTx(ctx, func(links repository.LinkRepository, visits repository.VisitRepository) error {
		if err := visits.DeleteAll(ctx); err != nil {
			return err
		}
		return links.DeleteAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if cache != nil {
		if err := cache.Clear(ctx); err != nil {
			return fmt.Errorf("store purged but link cache was not cleared: %w", err)
		}
	}

	fmt.Fprintln(out, "Deleted all links and visits")
	return nil
}
