package build

import (
	"log/slog"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/incremental"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/output"
	"git.home.luguber.info/inful/pressroom/internal/site"
	"git.home.luguber.info/inful/pressroom/internal/source"
)

// publishSite keeps feed.xml and sitemap.xml in step with the built pages.
// They are rewritten when the page set, the site settings or the files
// themselves changed, and removed when the site has no base URL.
func (r *Runner) publishSite(logger *slog.Logger, bc *cache.BuildCache, writer *output.Writer, claims output.Claims, force bool, report *BuildReport) {
	prev := bc.Site
	item := source.Item{Path: cache.SiteKey, Kind: source.KindSite}

	if !r.cfg.Site.Enabled() {
		if prev == nil {
			return
		}
		entry, _ := writer.Write(output.Result{Item: item, Previous: prev.OutputPaths, Claims: claims})
		report.DeletedOutputs += len(prev.OutputPaths) - len(entry.OutputPaths)
		bc.Site = nil
		if len(entry.OutputPaths) > 0 {
			bc.Site = &entry
		}
		logger.Info("Site feed and sitemap removed", logfields.Count(len(prev.OutputPaths)-len(entry.OutputPaths)))
		return
	}

	pages := site.Pages(bc)
	item.Fingerprint = site.Digest(pages)
	hash := r.hashes[source.KindSite]
	if !force && prev != nil && !prev.Partial &&
		prev.ConfigHash == hash &&
		prev.ContentFingerprint == item.Fingerprint &&
		r.outputsPresent(prev.OutputPaths) {
		return
	}

	artifacts, err := site.Generate(r.cfg.Site, pages)
	if err == nil {
		paths := make([]string, 0, len(artifacts))
		for _, a := range artifacts {
			paths = append(paths, a.Path)
		}
		err = claims.Claim(cache.SiteKey, paths)
	}
	if err != nil {
		r.siteFailed(logger, item, err, report)
		return
	}

	var previous []string
	if prev != nil {
		previous = prev.OutputPaths
	}
	entry, err := writer.Write(output.Result{
		Item:       item,
		Artifacts:  artifacts,
		ConfigHash: hash,
		Previous:   previous,
		Claims:     claims,
	})
	if len(entry.OutputPaths) > 0 {
		bc.Site = &entry
	}
	if err != nil {
		r.siteFailed(logger, item, err, report)
		return
	}

	report.SiteUpdated = true
	report.Outputs += len(artifacts)
	logger.Info("Site feed and sitemap written", logfields.Count(len(pages)))
}

func (r *Runner) siteFailed(logger *slog.Logger, item source.Item, err error, report *BuildReport) {
	report.addFailure(item, err)
	report.Failed++
	logger.Error("Failed to write site feed and sitemap", logfields.Error(err))
}

func (r *Runner) outputsPresent(paths []string) bool {
	check := incremental.FSProbe{FS: r.outputFS}
	for _, p := range paths {
		if ok, err := check.Exists(p); err != nil || !ok {
			return false
		}
	}
	return true
}
