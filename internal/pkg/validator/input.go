package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
)

// Validator validates inbound report requests
type Validator struct {
	cfg config.InputConfig
}

func NewInputValidator(cfg config.InputConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateReportInput validates a ReportInput. An empty riskMethod is allowed and means five-factor.
func (v *Validator) ValidateReportInput(in *entity.ReportInput) error {
	if strings.TrimSpace(in.Scope) == "" {
		return fmt.Errorf("%w: scope", entity.ErrMissingField)
	}

	switch in.RiskMethod {
	case "", entity.RiskMethodFiveFactors, entity.RiskMethodProcessFlow:
	default:
		return fmt.Errorf("%w: riskMethod must be %q or %q, got %q",
			entity.ErrInvalidParameter, entity.RiskMethodFiveFactors, entity.RiskMethodProcessFlow, in.RiskMethod)
	}

	total := len(in.SourceTexts.SOP) + len(in.SourceTexts.Literature)
	if total > v.cfg.MaxSourceTexts {
		return fmt.Errorf("%w: maximum %d source texts allowed, got %d", entity.ErrInvalidParameter, v.cfg.MaxSourceTexts, total)
	}

	if err := v.validateSourceTexts(in.SourceTexts.SOP, entity.CategorySOP); err != nil {
		return err
	}
	if err := v.validateSourceTexts(in.SourceTexts.Literature, entity.CategoryLiterature); err != nil {
		return err
	}

	if err := v.validateProcessSteps(in.ProcessSteps); err != nil {
		return err
	}

	if in.CallbackURL != "" {
		u, err := url.Parse(in.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: callbackUrl must be an absolute http(s) URL", entity.ErrInvalidParameter)
		}
	}

	return nil
}

func (v *Validator) validateSourceTexts(texts []entity.SourceText, category entity.Category) error {
	for i, t := range texts {
		if t.Category != "" && t.Category != category {
			return fmt.Errorf("%w: sourceTexts.%s[%d] has category %q", entity.ErrInvalidParameter, category, i, t.Category)
		}
		if len(t.Text) > v.cfg.MaxTextBytes {
			return fmt.Errorf("%w: sourceTexts.%s[%d] is %d bytes (max %d)",
				entity.ErrInvalidParameter, category, i, len(t.Text), v.cfg.MaxTextBytes)
		}
	}
	return nil
}

func (v *Validator) validateProcessSteps(steps []entity.ProcessStep) error {
	if len(steps) > v.cfg.MaxProcessSteps {
		return fmt.Errorf("%w: maximum %d process steps allowed, got %d", entity.ErrInvalidParameter, v.cfg.MaxProcessSteps, len(steps))
	}

	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("%w: processSteps[%d].id", entity.ErrMissingField, i)
		}
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("%w: processSteps[%d].name", entity.ErrMissingField, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: duplicate process step id %q", entity.ErrInvalidParameter, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}
