package reporting

const stylesheet = `body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 4px 8px; text-align: left; vertical-align: top; }
tr.passed td.status { color: #1a7f37; }
tr.failed td.status { color: #cf222e; }
tr.skipped td.status { color: #9a6700; }
pre { margin: 0; white-space: pre-wrap; }
`

const summaryTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Test Session {{.RunID}}</title>
<link rel="stylesheet" href="../html/style.css">
</head>
<body>
<h1>Test Session {{.RunID}}</h1>
<p>
Status: <strong class="{{statusClass (printf "%s" .Status)}}">{{.Status}}</strong>
&middot; Started {{formatTime .StartTime}}
&middot; Duration {{formatDuration .Duration}}
</p>
<p>Total {{.Total}} &middot; Passed {{.Passed}} &middot; Failed {{.Failed}} &middot; Skipped {{.Skipped}}</p>
<table>
<thead><tr><th>Status</th><th>Suite</th><th>Test</th><th>Description</th><th>Message</th></tr></thead>
<tbody>
{{- range .Cases}}
<tr class="{{statusClass .StatusLabel}}">
<td class="status">{{.StatusIcon}} {{.StatusLabel}}</td>
<td>{{.SuiteQualifiedName}}</td>
<td>{{.DisplayName}}</td>
<td>{{.Description}}</td>
<td><pre>{{.ErrorMessage}}</pre></td>
</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`
