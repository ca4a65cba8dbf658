package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/kb"
)

// BatchEmbedder generates embeddings for multiple texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordStore receives the rebuilt knowledge base.
type RecordStore interface {
	ReplaceAll(records []kb.Record) error
}

// Builder rebuilds the knowledge base from the course catalog plus an
// optional content directory of tutorial pages and syllabi. The finished
// record set replaces the previous one atomically.
type Builder struct {
	catalog  *catalog.Catalog
	docsDir  string
	embedder BatchEmbedder
	store    RecordStore
	logger   *slog.Logger
}

// NewBuilder creates a Builder. docsDir may be empty to index catalog
// metadata only.
func NewBuilder(cat *catalog.Catalog, docsDir string, embedder BatchEmbedder, store RecordStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		catalog:  cat,
		docsDir:  docsDir,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Build collects records, embeds their text, and swaps the knowledge base.
// Returns the number of indexed records.
func (b *Builder) Build(ctx context.Context) (int, error) {
	records := b.collectCourses()
	records = append(records, b.collectLearningPaths()...)

	docs, err := b.collectDocs()
	if err != nil {
		return 0, err
	}
	records = append(records, docs...)

	if len(records) == 0 {
		return 0, fmt.Errorf("no records to index")
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Title + " " + r.BodyText
	}
	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding records: %w", err)
	}
	for i := range records {
		records[i].Embedding = vecs[i]
	}

	if err := b.store.ReplaceAll(records); err != nil {
		return 0, fmt.Errorf("replacing knowledge base: %w", err)
	}
	b.logger.Info("knowledge base rebuilt", "records", len(records))
	return len(records), nil
}

// collectCourses turns every catalog course into a record. Body text comes
// from an optional per-course content file in the docs directory.
func (b *Builder) collectCourses() []kb.Record {
	var records []kb.Record
	for _, c := range b.catalog.Courses() {
		body := strings.TrimSpace(c.CourseName + " " + c.CourseLevel)
		if b.docsDir != "" {
			if text, ok := b.courseContent(c.CourseID); ok {
				body = text
			}
		}
		records = append(records, kb.Record{
			ID:       c.CourseID,
			Title:    c.CourseName,
			BodyText: body,
			Type:     kb.TypeCourse,
			Keywords: ExtractKeywords(c.CourseName+" "+body, 10),
		})
	}
	return records
}

// collectLearningPaths groups catalog courses by learning path and emits
// one record per path listing its courses.
func (b *Builder) collectLearningPaths() []kb.Record {
	paths := make(map[string][]string)
	for _, c := range b.catalog.Courses() {
		if c.LearningPathID == "" {
			continue
		}
		paths[c.LearningPathID] = append(paths[c.LearningPathID], c.CourseName)
	}

	ids := make([]string, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var records []kb.Record
	for _, id := range ids {
		body := strings.Join(paths[id], "; ")
		records = append(records, kb.Record{
			ID:       "lp-" + id,
			Title:    "Learning Path " + id,
			BodyText: body,
			Type:     kb.TypeLearningPath,
			Keywords: ExtractKeywords(body, 10),
		})
	}
	return records
}

// collectDocs indexes standalone content files under docsDir/tutorials as
// tutorial records.
func (b *Builder) collectDocs() ([]kb.Record, error) {
	if b.docsDir == "" {
		return nil, nil
	}
	dir := filepath.Join(b.docsDir, "tutorials")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing tutorials dir: %w", err)
	}

	var records []kb.Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		text, err := ExtractText(e.Name(), data)
		if err != nil {
			b.logger.Warn("skipping unreadable tutorial", "file", e.Name(), "error", err)
			continue
		}
		title := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		title = strings.ReplaceAll(title, "_", " ")
		records = append(records, kb.Record{
			ID:       "tut-" + uuid.NewString(),
			Title:    title,
			BodyText: text,
			Type:     kb.TypeTutorial,
			Keywords: ExtractKeywords(title+" "+text, 10),
		})
	}
	return records, nil
}

// courseContent reads docsDir/courses/<id>.<ext> for the first supported
// extension found.
func (b *Builder) courseContent(courseID string) (string, bool) {
	for _, ext := range []string{".txt", ".md", ".html", ".pdf"} {
		path := filepath.Join(b.docsDir, "courses", courseID+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		text, err := ExtractText(path, data)
		if err != nil {
			b.logger.Warn("skipping unreadable course content", "file", path, "error", err)
			continue
		}
		return text, true
	}
	return "", false
}

var wordRe = regexp.MustCompile(`\b[a-zA-Z0-9\-]+\b`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {},
	"dan": {}, "di": {}, "ke": {}, "pada": {}, "yang": {}, "untuk": {}, "dengan": {},
}

// ExtractKeywords returns the topN most frequent meaningful words in text.
func ExtractKeywords(text string, topN int) []string {
	freqs := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		freqs[w]++
	}

	words := make([]string, 0, len(freqs))
	for w := range freqs {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freqs[words[i]] != freqs[words[j]] {
			return freqs[words[i]] > freqs[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > topN {
		words = words[:topN]
	}
	return words
}
