// Package parser classifies raw model output into directives.
//
// Terminal directives FINAL(...) and FINAL_VAR(...) are located with a
// balanced-delimiter scan rather than pattern matching: a depth counter walks
// the argument so answers that themselves contain parenthesized
// sub-expressions are captured in full instead of being truncated at the
// first closing parenthesis. Output without a terminal directive is
// classified as executable code when it parses as sandbox statements, and as
// plain text otherwise.
package parser
