package graph

import (
	"github.com/saskenuba/dbml-language-server/internal/index"
)

// FromSchema turns the definitions and relationships of one document into
// graph nodes and links. Relationship ends written with an alias are
// resolved to the canonical table.
func FromSchema(defs []index.Definition, rels []index.Relationship) ([]Node, []Link) {
	var nodes []Node
	position := make(map[string]int)
	canonical := make(map[string]string)

	for _, def := range defs {
		switch def.Kind {
		case index.DefinitionTable:
			canonical[def.Name] = def.Name
			if _, ok := position[def.Name]; !ok {
				position[def.Name] = len(nodes)
				nodes = append(nodes, Node{ID: def.Name, Label: def.Name, Fields: []string{}})
			}
		case index.DefinitionAlias:
			canonical[def.Name] = def.Detail
			if i, ok := position[def.Detail]; ok {
				nodes[i].Label = def.Detail + " (" + def.Name + ")"
			}
		case index.DefinitionField:
			if i, ok := position[def.Container]; ok {
				nodes[i].Fields = append(nodes[i].Fields, def.Name+" "+def.Detail)
			}
		}
	}

	resolve := func(table string) string {
		if name, ok := canonical[table]; ok {
			return name
		}
		return table
	}

	links := make([]Link, 0, len(rels))
	for _, rel := range rels {
		links = append(links, Link{
			Source: resolve(rel.From.Table),
			Target: resolve(rel.To.Table),
			Label:  rel.From.Table + "." + rel.From.Field + " " + rel.Op + " " + rel.To.Table + "." + rel.To.Field,
		})
	}
	return nodes, links
}
