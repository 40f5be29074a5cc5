package export

import "fmt"

// Service renders documents to PDF.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// ExportPDF renders the document to a PDF file.
func (s *Service) ExportPDF(doc Document) (*Result, error) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       doc.Title,
		ContentHTML: contentToHTML(doc.Content),
		Author:      doc.Author,
		Version:     doc.Version,
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return exportPDF(html, doc.Title)
}
