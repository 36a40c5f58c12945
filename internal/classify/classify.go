// Package classify implements the repository classifier: a heuristic
// warning layer that inspects a repository before journal entries are
// written into it. Classification is advisory only; it never blocks a
// connect and fetch failures degrade to "unknown" rather than erroring.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kallestad/driftmark/internal/models"
	"github.com/kallestad/driftmark/internal/remote"
	"github.com/kallestad/driftmark/pkg/ttlcache"
)

// cacheTTL bounds how long an analysis is reused while the user
// navigates back and forth during repository selection.
const cacheTTL = 5 * time.Minute

// Inspector is the slice of the remote client the classifier needs.
type Inspector interface {
	GetRepository(ctx context.Context, owner, repo string) (*models.Repository, error)
	ReadDirectory(ctx context.Context, cfg models.ConnectionConfig, dir string) ([]remote.Entry, error)
	CountContributors(ctx context.Context, owner, repo string) (int, error)
}

// InspectorFactory builds an Inspector for a credential token.
type InspectorFactory func(token string) (Inspector, error)

// developmentMarkers are well-known build and tooling names whose
// presence at the repository root suggests a codebase.
var developmentMarkers = map[string]struct{}{
	"package.json": {}, "package-lock.json": {}, "yarn.lock": {}, "pnpm-lock.yaml": {},
	"go.mod": {}, "go.sum": {}, "cargo.toml": {}, "cargo.lock": {},
	"requirements.txt": {}, "pyproject.toml": {}, "setup.py": {}, "gemfile": {},
	"pom.xml": {}, "build.gradle": {}, "makefile": {}, "cmakelists.txt": {},
	"dockerfile": {}, "docker-compose.yml": {}, "tsconfig.json": {}, "webpack.config.js": {},
	".github": {}, ".gitlab-ci.yml": {}, ".circleci": {},
	"src": {}, "lib": {}, "test": {}, "tests": {}, "vendor": {}, "node_modules": {},
}

// journalKeywords are description words that suggest personal journal use.
var journalKeywords = []string{"journal", "diary", "notes", "writing", "thoughts", "zen"}

// Analyzer classifies repositories, caching results per owner/repo.
type Analyzer struct {
	newInspector InspectorFactory
	cache        *ttlcache.Cache[string, models.RepositoryAnalysis]
	logger       *slog.Logger
}

// NewAnalyzer creates an Analyzer using the given client factory.
func NewAnalyzer(factory InspectorFactory, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		newInspector: factory,
		cache:        ttlcache.New[string, models.RepositoryAnalysis](cacheTTL),
		logger:       logger.With(slog.String("component", "classify")),
	}
}

// Cache exposes the analysis cache. Test hook.
func (a *Analyzer) Cache() *ttlcache.Cache[string, models.RepositoryAnalysis] {
	return a.cache
}

// Analyze classifies a repository, serving cached results within the
// TTL. Fetch failures return the conservative unknown analysis with a
// zero confidence, never an error.
func (a *Analyzer) Analyze(ctx context.Context, token, owner, repo string) models.RepositoryAnalysis {
	key := owner + "/" + repo
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	analysis := a.analyze(ctx, token, owner, repo)
	a.cache.Put(key, analysis)
	return analysis
}

func (a *Analyzer) analyze(ctx context.Context, token, owner, repo string) models.RepositoryAnalysis {
	insp, err := a.newInspector(token)
	if err != nil {
		return unknownAnalysis()
	}

	meta, err := insp.GetRepository(ctx, owner, repo)
	if err != nil {
		a.logger.Debug("metadata fetch failed", slog.String("repo", owner+"/"+repo), slog.String("error", err.Error()))
		return unknownAnalysis()
	}

	cfg := models.ConnectionConfig{Token: token, Owner: owner, Repo: repo}
	root, err := insp.ReadDirectory(ctx, cfg, "")
	if err != nil {
		a.logger.Debug("root listing failed", slog.String("repo", owner+"/"+repo), slog.String("error", err.Error()))
		return unknownAnalysis()
	}

	// Contributor count is a soft signal; a failure here does not
	// invalidate the rest of the indicators.
	contributors, err := insp.CountContributors(ctx, owner, repo)
	if err != nil {
		contributors = 0
	}

	ind := indicators(meta.Description, root)
	ind.ContributorCount = contributors
	return Classify(ind)
}

func indicators(description string, root []remote.Entry) models.AnalysisIndicators {
	ind := models.AnalysisIndicators{
		FileCount:            len(root),
		DevelopmentFileTypes: []string{},
	}

	for _, e := range root {
		if e.Type == "dir" && e.Name == remote.EntriesDir {
			ind.HasEntriesFolder = true
		}
		if _, dev := developmentMarkers[strings.ToLower(e.Name)]; dev {
			ind.HasDevelopmentFiles = true
			ind.DevelopmentFileTypes = append(ind.DevelopmentFileTypes, e.Name)
		}
	}
	sort.Strings(ind.DevelopmentFileTypes)

	desc := strings.ToLower(description)
	for _, kw := range journalKeywords {
		if strings.Contains(desc, kw) {
			ind.HasJournalKeywords = true
			break
		}
	}
	return ind
}

// Classify applies the classification rules, in order, to a set of
// indicators. Exposed separately so rules can be tested without a
// remote fetch.
func Classify(ind models.AnalysisIndicators) models.RepositoryAnalysis {
	switch {
	case ind.HasEntriesFolder:
		return models.RepositoryAnalysis{
			Type:           models.RepoJournalAppropriate,
			Confidence:     0.9,
			Indicators:     ind,
			Recommendation: "This repository already has an entries folder and is ready for journal use.",
		}
	case ind.HasJournalKeywords:
		return models.RepositoryAnalysis{
			Type:           models.RepoJournalAppropriate,
			Confidence:     0.7,
			Indicators:     ind,
			Recommendation: "The repository description suggests journal use.",
		}
	case ind.HasDevelopmentFiles && ind.FileCount > 5:
		return models.RepositoryAnalysis{
			Type:       models.RepoDevelopment,
			Confidence: 0.8,
			Indicators: ind,
			Recommendation: fmt.Sprintf(
				"This repository looks like a development codebase (%s). Consider a dedicated journal repository instead.",
				strings.Join(ind.DevelopmentFileTypes, ", ")),
		}
	case ind.FileCount <= 3:
		return models.RepositoryAnalysis{
			Type:           models.RepoJournalAppropriate,
			Confidence:     0.6,
			Indicators:     ind,
			Recommendation: "This repository is nearly empty and looks safe for journal entries.",
		}
	default:
		return models.RepositoryAnalysis{
			Type:           models.RepoUnknown,
			Confidence:     0.3,
			Indicators:     ind,
			Recommendation: "Could not confidently classify this repository. Review its contents before connecting.",
		}
	}
}

func unknownAnalysis() models.RepositoryAnalysis {
	return models.RepositoryAnalysis{
		Type:       models.RepoUnknown,
		Confidence: 0,
		Indicators: models.AnalysisIndicators{
			DevelopmentFileTypes: []string{},
		},
		Recommendation: "Could not inspect this repository; proceed with caution.",
	}
}
