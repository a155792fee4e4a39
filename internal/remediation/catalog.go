package remediation

import (
	"context"
	"fmt"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const (
	pythonDocsTag        = "python_docs"
	pythonExceptionsDocs = "https://docs.python.org/3/library/exceptions.html"
)

var catalog = map[string]apiv1.FixAdvice{
	"ZeroDivisionError": {
		Summary:     "You're trying to divide a number by zero.",
		CodeExample: "def divide(a, b):\n    if b == 0:\n        return 'Cannot divide by zero'\n    return a / b",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#ZeroDivisionError"}},
	},
	"KeyError": {
		Summary:     "You're trying to access a key that doesn't exist in a dictionary.",
		CodeExample: "value = my_dict.get('key', 'default')",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#KeyError"}},
	},
	"IndexError": {
		Summary:     "You're trying to access an index that is out of range.",
		CodeExample: "if i < len(my_list):\n    print(my_list[i])",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#IndexError"}},
	},
	"AttributeError": {
		Summary:     "You're accessing an attribute the object doesn't have, often because the value is None.",
		CodeExample: "if obj is not None and hasattr(obj, 'name'):\n    print(obj.name)",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#AttributeError"}},
	},
	"TypeError": {
		Summary:     "An operation was applied to a value of the wrong type.",
		CodeExample: "total = int(a) + int(b)",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#TypeError"}},
	},
	"ValueError": {
		Summary:     "A function received a value of the right type but an inappropriate value.",
		CodeExample: "try:\n    n = int(text)\nexcept ValueError:\n    n = 0",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#ValueError"}},
	},
	"ModuleNotFoundError": {
		Summary:     "The imported module is not installed or not on the import path.",
		CodeExample: "# pip install <package>\nimport importlib.util\nif importlib.util.find_spec('requests') is None:\n    raise SystemExit('requests is not installed')",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#ModuleNotFoundError"}},
	},
	"FileNotFoundError": {
		Summary:     "The file or directory being opened does not exist.",
		CodeExample: "from pathlib import Path\npath = Path('data.txt')\nif path.exists():\n    text = path.read_text()",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs + "#FileNotFoundError"}},
	},
}

// CatalogAdvisor answers from a built-in table of common Python errors.
// Unknown kinds get a generic suggestion. It never fails.
type CatalogAdvisor struct{}

// NewCatalogAdvisor returns a CatalogAdvisor.
func NewCatalogAdvisor() *CatalogAdvisor {
	return &CatalogAdvisor{}
}

// Advise returns the catalog entry for req.ErrorKind.
func (CatalogAdvisor) Advise(_ context.Context, req Request) (apiv1.FixAdvice, error) {
	if advice, ok := catalog[req.ErrorKind]; ok {
		refs := make([]apiv1.Reference, len(advice.References))
		copy(refs, advice.References)
		advice.References = refs
		return advice, nil
	}
	return apiv1.FixAdvice{
		Summary:     fmt.Sprintf("No fix suggestion found for %s.", req.ErrorKind),
		CodeExample: "# Add input validation or debug this section.",
		References:  []apiv1.Reference{{SourceTag: pythonDocsTag, URL: pythonExceptionsDocs}},
	}, nil
}
