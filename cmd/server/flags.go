package main

import (
	"github.com/spf13/pflag"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/usecase"
)

// optimizeOptions holds the optimize command flags
type optimizeOptions struct {
	collectionIDs []int64
	productIDs    []int64
	mode          string
	extra         string
	model         string
	dryRun        bool
	transactional bool
}

func (o *optimizeOptions) register(f *pflag.FlagSet) {
	f.Int64SliceVar(&o.collectionIDs, "collection", nil, "Collection ids whose products are rewritten")
	f.Int64SliceVar(&o.productIDs, "product", nil, "Product ids to rewrite")
	f.StringVar(&o.mode, "mode", "", "Category mode, auto or a catalog key (default from configuration)")
	f.StringVar(&o.extra, "extra", "", "Extra instructions appended to every prompt")
	f.StringVar(&o.model, "model", "", "Model override")
	f.BoolVar(&o.dryRun, "dry-run", false, "Generate without writing back (default from configuration)")
	f.BoolVar(&o.transactional, "transactional", false, "Append a transactional clause to meta descriptions (default from configuration)")
}

// request builds the run request. Flags left unset keep the configured
// defaults, so --dry-run=false overrides dry_run: true.
func (o *optimizeOptions) request(f *pflag.FlagSet, store domain.Store, defaultDryRun bool) usecase.RunRequest {
	req := usecase.RunRequest{
		Store:             store,
		CollectionIDs:     o.collectionIDs,
		ProductIDs:        o.productIDs,
		Mode:              o.mode,
		ExtraInstructions: o.extra,
		Model:             o.model,
		DryRun:            defaultDryRun,
	}
	if f.Changed("dry-run") {
		req.DryRun = o.dryRun
	}
	if f.Changed("transactional") {
		transactional := o.transactional
		req.Transactional = &transactional
	}
	return req
}
