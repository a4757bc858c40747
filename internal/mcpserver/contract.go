package mcpserver

// RecordFormat describes the JSON record robotdb stores for every asset.
const RecordFormat = `# robotdb Record Format

One JSON document is stored per asset. The document name is
` + "`" + `<basename>-<md5 of identity>.json` + "`" + `, where the identity is the absolute file
path of a suite, resource or variable file, or the bare name of a library
imported by name (e.g. ` + "`" + `BuiltIn` + "`" + `).

## Fields

| Field | Present for | Meaning |
|-------|-------------|---------|
| ` + "`" + `kind` + "`" + ` | all | ` + "`" + `suite` + "`" + `, ` + "`" + `resource` + "`" + `, ` + "`" + `library` + "`" + ` or ` + "`" + `variable` + "`" + ` |
| ` + "`" + `file_name` + "`" + `, ` + "`" + `file_path` + "`" + ` | file-backed assets | base name and absolute path |
| ` + "`" + `library_module` + "`" + ` | libraries | module or library name |
| ` + "`" + `arguments` + "`" + ` | libraries, variable files | import arguments the asset was parsed with |
| ` + "`" + `keywords` + "`" + ` | all | map of normalized key to keyword |
| ` + "`" + `variables` + "`" + ` | all | variable names, e.g. ` + "`" + `${HOST}` + "`" + `, ` + "`" + `@{USERS}` + "`" + ` |
| ` + "`" + `resources` + "`" + ` | suites, resources | absolute paths of imported resource files |
| ` + "`" + `libraries` + "`" + ` | suites, resources | library imports |
| ` + "`" + `variable_files` + "`" + ` | suites, resources | variable file imports |

Keyword keys are the lower-cased name with spaces replaced by underscores:
` + "`" + `Open Login Page` + "`" + ` is stored under ` + "`" + `open_login_page` + "`" + `.

A keyword:

` + "```" + `json
{
  "keyword_name": "Open Login Page",
  "keyword_arguments": ["${url}", "${browser}=chrome"],
  "documentation": "Opens the login page.",
  "tags": ["smoke"]
}
` + "```" + `

A library import. ` + "`" + `library_path` + "`" + ` is set when the library was imported by file
and is then the identity of its record; otherwise the record identity is
` + "`" + `library_name` + "`" + `:

` + "```" + `json
{
  "library_name": "OperatingSystem",
  "library_alias": "OS",
  "library_arguments": [],
  "library_path": null
}
` + "```" + `

A variable file import maps the resolved path to its arguments:

` + "```" + `json
{ "/ws/vars/env.py": { "variable_file_arguments": ["staging"] } }
` + "```" + `

## Notes

- Every asset reachable from the workspace is recorded once, including
  ` + "`" + `BuiltIn` + "`" + `, which every suite imports implicitly.
- Imports that could not be resolved are still listed on the importing
  record but have no record of their own.
- Use ` + "`" + `get_dependents` + "`" + ` to walk the import graph in the reverse direction.
`
