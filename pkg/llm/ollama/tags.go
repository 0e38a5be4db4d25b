package ollama

// Placeholder metadata reported for every advertised model. The proxy has no
// local model files, but clients expect these fields to be populated.
const (
	placeholderModifiedAt        = "2025-05-22T13:17:33.539324157+08:00"
	placeholderSize              = 3200627168
	placeholderDigest            = "fb90415cde1ef08aa669ae74b082d49b158729b6db1ab183c941417d507e71a1"
	placeholderFormat            = "gguf"
	placeholderFamily            = "qwen"
	placeholderParameterSize     = "3.8B"
	placeholderQuantizationLevel = "Q4_K_M"
)

// TagsResponse is the body of GET /api/tags.
type TagsResponse struct {
	Models []ModelEntry `json:"models"`
}

// ModelEntry describes one model in TagsResponse.
type ModelEntry struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt string       `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails is the details object of a ModelEntry.
type ModelDetails struct {
	ParentModel       string   `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// NewTagsResponse synthesizes one entry per model name, in order.
func NewTagsResponse(names []string) TagsResponse {
	models := make([]ModelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, ModelEntry{
			Name:       name,
			Model:      name,
			ModifiedAt: placeholderModifiedAt,
			Size:       placeholderSize,
			Digest:     placeholderDigest,
			Details: ModelDetails{
				ParentModel:       "",
				Format:            placeholderFormat,
				Family:            placeholderFamily,
				Families:          []string{placeholderFamily},
				ParameterSize:     placeholderParameterSize,
				QuantizationLevel: placeholderQuantizationLevel,
			},
		})
	}
	return TagsResponse{Models: models}
}
