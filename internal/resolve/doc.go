// Package resolve binds names to the cells that define them.
//
// Within a module, a reference resolves to the latest same-named cell
// declared before the referencing cell; forward references resolve to the
// module's final definition. Across modules, import cells are followed
// through the Library until a real definition is reached. A local definition
// declared after an import of the same name shadows that import for every
// cell declared after it.
package resolve
