// Package desc holds the resolved graph description consumed by the
// runtime: node specs (operation name, topological rank, scalar config,
// input/output shapes, injected capabilities), the edge list, and nested
// child-graph templates for the dynamic constructs.
//
// The description is the hand-off point from the wiring front end. By the
// time a Graph reaches this package all generics are resolved and all ranks
// assigned; the runtime never inspects types dynamically beyond the tagged
// shapes defined here. Descriptions are plain data - they unmarshal from
// YAML (harness scenarios) and from CUE (the cli loader) with the same
// field names.
package desc
