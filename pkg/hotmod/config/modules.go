package config

// ModuleDecl is one module declaration from the modules section:
//
//	modules:
//	  - name: producer
//	    path: ./modules/producer.lua
//	    enabled: true
//	    config:
//	      interval: 5s
type ModuleDecl struct {
	Name    string
	Path    string
	Enabled bool
	Config  Config
}

// Modules decodes the module declarations from the merged configuration.
// Declarations without a name or path are dropped; enabled defaults to true.
func (c Config) Modules() []ModuleDecl {
	section := c.Sub("modules")
	raw, ok := section.Raw()["modules"].([]any)
	if !ok {
		return nil
	}

	decls := make([]ModuleDecl, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := New(m)
		decl := ModuleDecl{
			Name:    entry.String("name", ""),
			Path:    entry.String("path", ""),
			Enabled: entry.Bool("enabled", true),
			Config:  entry.Sub("config"),
		}
		if decl.Name == "" || decl.Path == "" {
			continue
		}
		decls = append(decls, decl)
	}
	return decls
}
