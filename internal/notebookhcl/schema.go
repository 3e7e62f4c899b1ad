package notebookhcl

import "github.com/hashicorp/hcl/v2"

const (
	blockNotebook = "notebook"
	blockCell     = "cell"
	blockEffect   = "effect"
	blockImport   = "import"

	attrValue  = "value"
	attrInputs = "inputs"
	attrYield  = "yield"
	attrEvery  = "every"
	attrDelay  = "delay"
	attrFrom   = "from"
	attrRemote = "remote"
)

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: blockNotebook, LabelNames: []string{"id"}},
	},
}

var notebookSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: blockCell, LabelNames: []string{"name"}},
		{Type: blockEffect},
		{Type: blockImport, LabelNames: []string{"name"}},
	},
}

var cellSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: attrValue},
		{Name: attrInputs},
		{Name: attrYield},
		{Name: attrEvery},
		{Name: attrDelay},
	},
}

var importSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: attrFrom, Required: true},
		{Name: attrRemote},
	},
}
