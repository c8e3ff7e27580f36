package pipeline

import (
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
)

// anyLanguage is the strategy table key matching every language code not
// listed explicitly.
const anyLanguage = "*"

// strategy picks the extraction task for a language and builds its params.
type strategy struct {
	task   extraction.TaskID
	params func(document, languageCode string) map[string]string
}

// strategyTable maps a language code to the task that handles it.
type strategyTable map[string]strategy

func (t strategyTable) lookup(languageCode string) strategy {
	if s, ok := t[languageCode]; ok {
		return s
	}
	return t[anyLanguage]
}

func (t strategyTable) request(document, languageCode string) extraction.Request {
	s := t.lookup(languageCode)
	return extraction.Request{Task: s.task, Params: s.params(document, languageCode)}
}

var clientIdentification = strategyTable{
	"en": {
		task: extraction.TaskClientIdentifier,
		params: func(document, _ string) map[string]string {
			return map[string]string{"document": document}
		},
	},
	anyLanguage: {
		task: extraction.TaskMultilingualClientIdentifier,
		params: func(document, code string) map[string]string {
			return map[string]string{"document": document, "language": code}
		},
	},
}

var classification = strategyTable{
	"en": {
		task: extraction.TaskClassify,
		params: func(document, _ string) map[string]string {
			return map[string]string{"document": document, "categories": domain.CategoryList()}
		},
	},
	anyLanguage: {
		task: extraction.TaskClassifyMultilingual,
		params: func(document, code string) map[string]string {
			return map[string]string{"document": document, "language": code, "categories": domain.CategoryList()}
		},
	},
}
