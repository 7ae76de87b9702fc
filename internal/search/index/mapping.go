package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// mappingVersion is bumped whenever buildIndexMapping changes; an index
// written with another version is dropped and rebuilt from the projection.
const mappingVersion = "1"

// buildIndexMapping maps question documents:
//   - title and content are English full-text fields
//   - tags use the keyword analyzer so compound slugs ("c#", "node.js")
//     stay intact for exact filtering
//   - created_at and answer_count are numeric for sorting
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = en.AnalyzerName
	title.Store = true
	doc.AddFieldMappingsAt("title", title)

	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName
	content.Store = true
	doc.AddFieldMappingsAt("content", content)

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = keyword.Name
	tags.Store = true
	doc.AddFieldMappingsAt("tags", tags)

	createdAt := bleve.NewNumericFieldMapping()
	createdAt.Store = true
	doc.AddFieldMappingsAt("created_at", createdAt)

	answerCount := bleve.NewNumericFieldMapping()
	answerCount.Store = true
	doc.AddFieldMappingsAt("answer_count", answerCount)

	accepted := bleve.NewBooleanFieldMapping()
	accepted.Store = true
	doc.AddFieldMappingsAt("has_accepted_answer", accepted)

	indexMapping.DefaultMapping = doc
	return indexMapping
}
