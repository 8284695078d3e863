package convert

import (
	"context"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"bloomepub/fonts"
	"bloomepub/state"
)

// ListFonts prints what font catalog can offer for embedding.
func ListFonts(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)

	if dir := cmd.String("dir"); len(dir) > 0 {
		env.Cfg.Document.Fonts.Directory = dir
	}
	catalog := newCatalog(env)
	env.Log.Info("Listing fonts", zap.Strings("dirs", catalog.Dirs()))

	return listFonts(ctx, os.Stdout, catalog, cmd.Args().Slice())
}

// listFonts writes slots of requested families (all when none requested)
// followed by files excluded from the catalog.
func listFonts(ctx context.Context, w io.Writer, catalog *fonts.Catalog, families []string) error {
	if len(families) == 0 {
		var err error
		if families, err = catalog.Families(ctx); err != nil {
			return err
		}
	}

	for _, family := range families {
		group, err := catalog.FilesForFamily(ctx, family)
		if err != nil {
			return err
		}
		if group.Empty() {
			fmt.Fprintf(w, "%s: not available\n", family)
			continue
		}
		fmt.Fprintf(w, "%s\n", family)
		for _, s := range fonts.Slots {
			if group[s] != "" {
				fmt.Fprintf(w, "\t%-12s %s\n", s, group[s])
			}
		}
	}

	excluded, err := catalog.Excluded(ctx, "")
	if err != nil {
		return err
	}
	if len(excluded) > 0 {
		fmt.Fprintf(w, "\nExcluded:\n")
		for _, e := range excluded {
			fmt.Fprintf(w, "\t%v\n", e)
		}
	}
	return nil
}
