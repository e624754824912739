package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/document"
	"github.com/joseph-ayodele/exam-importer/internal/llm"
	"github.com/joseph-ayodele/exam-importer/internal/llm/provider"
	"github.com/joseph-ayodele/exam-importer/internal/raster"
)

// FromConfig builds an Extractor over the PDF text loader, pdftoppm and the
// configured inference provider.
func FromConfig(cfg *common.Config, logger *slog.Logger) (*Extractor, llm.ChatClient, error) {
	chat, err := provider.New(cfg.Inference, logger)
	if err != nil {
		return nil, nil, err
	}
	rasterizer := raster.NewRasterizer(raster.Config{
		Binary:  cfg.Raster.Binary,
		TempDir: cfg.Raster.TempDir,
	}, logger)
	return NewExtractor(ConfigFrom(cfg), document.NewPDFLoader(logger), rasterizer, chat, logger), chat, nil
}
