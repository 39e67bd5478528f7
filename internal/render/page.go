package render

import "html/template"

// Block names used for the active class
const (
	BlockInput   = "input"
	BlockLoading = "loading"
	BlockResults = "results"
)

// PageView is everything the page template needs
type PageView struct {
	Active        string
	Query         string
	InputDisabled bool
	Notice        string
	Results       template.HTML
	EventsURL     string
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"active": func(current, block string) string {
		if current == block {
			return "block active"
		}
		return "block"
	},
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>AI search</title>
{{- if eq .Active "loading"}}
<noscript><meta http-equiv="refresh" content="2"></noscript>
{{- end}}
<style>
.block{display:none}.block.active{display:block}
.video-card{border:1px solid #ddd;border-radius:8px;padding:12px;margin:8px 0}
.hint{color:#666;font-size:90%}.error-box{border:1px solid #e99;padding:12px;border-radius:8px}
.actions form{display:inline-block;margin-right:8px}.notice{color:#b00}
</style>
</head>
<body>
<div id="ai-input-block" class="{{active .Active "input"}}">
  <form method="post" action="/search">
    <input id="ai-query" name="q" type="text" value="{{.Query}}" autofocus{{if .InputDisabled}} disabled{{end}}>
    <button id="ai-start-btn" type="submit"{{if .InputDisabled}} disabled{{end}}>Search</button>
  </form>
  {{- if .Notice}}
  <p class="notice">{{.Notice}}</p>
  {{- end}}
</div>
<div id="ai-loading-block" class="{{active .Active "loading"}}">
  <p>Searching…</p>
  {{- if and (eq .Active "loading") .EventsURL}}
  <script>
  (function () {
    var source = new EventSource({{.EventsURL}});
    source.addEventListener("state", function (e) {
      if (JSON.parse(e.data).state !== "loading") { source.close(); location.reload(); }
    });
  })();
  </script>
  {{- end}}
</div>
<div id="ai-results-block" class="{{active .Active "results"}}">
  <div id="results">{{.Results}}</div>
  <form method="post" action="/new"><button id="ai-new-search" type="submit">New search</button></form>
</div>
</body>
</html>
`))
