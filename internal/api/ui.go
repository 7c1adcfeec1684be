package api

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var uiTemplates = template.Must(template.New("layout").Parse(`{{define "layout"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>vidfetch</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:12px;flex-wrap:nowrap}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .btn:disabled{background:#9bb8e8;cursor:default}
    input[type=text],select{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px;width:100%}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    .bar{height:10px;background:#efefef;border-radius:6px;overflow:hidden;margin:10px 0}
    .bar>div{height:100%;width:0;background:#0b63e5;transition:width .3s}
    .error{border-color:#f2b8b5;background:#fff6f6;color:#b3261e}
    .hidden{display:none}
    footer{margin-top:24px;color:#666;font-size:12px}
  </style>
</head>
<body>
  <header>
    <h1>vidfetch</h1>
    <div class="muted">Paste a video link, pick a format, download.</div>
  </header>
  {{template "content" .}}
  <footer>
    <div>Up to <span class="mono">{{.MaxConcurrent}}</span> downloads run at once{{if .Busy}} · <strong>server is busy</strong>{{end}}</div>
  </footer>
  <script>{{template "script"}}</script>
</body>
</html>
{{end}}

{{define "home"}}
  {{template "layout" .}}
{{end}}

{{define "content"}}
  <div class="card">
    <form id="extract-form">
      <div class="row">
        <input type="text" id="url" name="url" placeholder="https://www.youtube.com/watch?v=..." value="{{.URL}}" required />
        <button class="btn" id="extract-btn" type="submit">Get formats</button>
      </div>
    </form>
  </div>

  <div class="card error hidden" id="error"></div>

  <div class="card hidden" id="info">
    <h2 id="title"></h2>
    <div class="muted" id="meta"></div>
    <div style="margin-top:12px" class="row">
      <select id="format"></select>
      <button class="btn" id="download-btn" type="button">Download</button>
    </div>
  </div>

  <div class="card hidden" id="task">
    <div>Task <span class="mono" id="task-id"></span> <span class="status" id="task-status"></span></div>
    <div class="bar"><div id="task-bar"></div></div>
    <div class="muted" id="task-message"></div>
    <div id="task-link" class="hidden" style="margin-top:12px"><a class="btn" id="task-file" href="#">Save file</a></div>
  </div>
{{end}}

{{define "script"}}
(function(){
  var pollMs = 1000;
  var $ = function(id){ return document.getElementById(id); };
  var timer = null;

  function show(id, on){ $(id).classList.toggle("hidden", !on); }
  function fail(msg){ $("error").textContent = msg; show("error", true); }

  function post(path, body){
    return fetch(path, {method:"POST", headers:{"Content-Type":"application/json"}, body:JSON.stringify(body)})
      .then(function(r){ return r.json(); });
  }

  $("extract-form").addEventListener("submit", function(e){
    e.preventDefault();
    show("error", false); show("info", false);
    $("extract-btn").disabled = true;
    post("/extract", {url: $("url").value}).then(function(res){
      if (!res.success) { fail(res.error); return; }
      var d = res.data;
      $("title").textContent = d.title;
      $("meta").textContent = d.uploader + " · " + d.duration_string;
      var sel = $("format"); sel.innerHTML = "";
      d.formats.forEach(function(f){
        var o = document.createElement("option");
        o.value = f.format_id + "|" + f.quality;
        o.textContent = f.quality + " (" + f.estimated_size + ")";
        if (f.recommended) { o.selected = true; }
        sel.appendChild(o);
      });
      show("info", true);
    }).catch(function(err){ fail(String(err)); })
      .finally(function(){ $("extract-btn").disabled = false; });
  });

  $("download-btn").addEventListener("click", function(){
    var parts = $("format").value.split("|");
    show("error", false);
    post("/download", {url: $("url").value, format_id: parts[0], quality: parts.slice(1).join("|")}).then(function(res){
      if (!res.success) { fail(res.error); return; }
      track(res.task_id);
    }).catch(function(err){ fail(String(err)); });
  });

  function track(id){
    if (timer) { clearInterval(timer); }
    $("task-id").textContent = id;
    show("task-link", false); show("task", true);
    timer = setInterval(function(){ poll(id); }, pollMs);
    poll(id);
  }

  function poll(id){
    fetch("/task/" + encodeURIComponent(id)).then(function(r){ return r.json(); }).then(function(res){
      if (!res.success) { clearInterval(timer); fail(res.error); return; }
      var t = res.task;
      $("task-status").textContent = t.status;
      $("task-bar").style.width = t.progress + "%";
      var msg = t.message;
      if (t.download_speed) { msg += " · " + t.download_speed; }
      if (t.eta) { msg += " · ETA " + t.eta; }
      $("task-message").textContent = msg;
      if (t.status === "completed") {
        clearInterval(timer);
        $("task-file").href = t.download_url;
        $("task-file").textContent = "Save " + t.filename + " (" + t.file_size + ")";
        show("task-link", true);
      } else if (t.status === "failed") {
        clearInterval(timer);
        fail(t.error);
      }
    });
  }
})();
{{end}}
`))

// RegisterUIRoutes registers the single page front end
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
}

// UIHome renders the home page; ?url= prefills the input
func (a *API) UIHome(c *gin.Context) {
	c.HTML(http.StatusOK, "home", gin.H{
		"URL":           strings.TrimSpace(c.Query("url")),
		"MaxConcurrent": a.taskManager.MaxConcurrent(),
		"Busy":          a.taskManager.IsBusy(),
	})
}
