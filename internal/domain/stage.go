package domain

// StageName — имя стадии pipeline.
type StageName string

// Стадии pipeline по умолчанию.
const (
	StageIngest           StageName = "INGEST"
	StageAnalyze          StageName = "ANALYZE"
	StageProcess          StageName = "PROCESS"
	StageEnhance          StageName = "ENHANCE"
	StageFinalize         StageName = "FINALIZE"
	StageQualityAssurance StageName = "QUALITY_ASSURANCE"
)

// DefaultStages возвращает стандартный pipeline:
// INGEST → ANALYZE → PROCESS → ENHANCE → FINALIZE → QUALITY_ASSURANCE.
func DefaultStages() []StageName {
	return []StageName{
		StageIngest,
		StageAnalyze,
		StageProcess,
		StageEnhance,
		StageFinalize,
		StageQualityAssurance,
	}
}
