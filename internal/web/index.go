package web

// Live alert feed and decision log.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>PVSRA</title>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; --bull:#16a34a; --bear:#dc2626; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono',monospace; }
    h1 { font-size:1.1rem; letter-spacing:.2em; text-transform:uppercase; }
    .cols { display:grid; grid-template-columns:1fr 1fr; gap:1.5rem; }
    .panel { background:var(--panel); padding:1rem; min-height:60vh; overflow:auto; }
    .row { padding:.4rem 0; border-bottom:1px dashed var(--ink-soft); font-size:.8rem; }
    .bullish { color:var(--bull); } .bearish { color:var(--bear); }
    .muted { color:var(--ink-soft); }
    .allow { font-weight:700; }
  </style>
</head>
<body>
  <h1>PVSRA monitor</h1>
  <div class="cols">
    <div><h2>Alerts</h2><div id="alerts" class="panel"></div></div>
    <div><h2>Decisions</h2><div id="decisions" class="panel"></div></div>
  </div>
<script>
function fmt(ts){ const d = new Date(ts); return d.toISOString().substring(11,19); }
function prepend(id, html){
  const el = document.getElementById(id);
  const row = document.createElement('div');
  row.className = 'row';
  row.innerHTML = html;
  el.prepend(row);
  while (el.children.length > 200) el.removeChild(el.lastChild);
}
function connect(){
  const es = new EventSource('/journal/stream');
  es.addEventListener('alert', e => {
    const a = JSON.parse(e.data);
    prepend('alerts', '<span class="muted">'+fmt(a.ts)+'</span> <b>'+a.symbol+'</b> <span class="'+a.direction+'">'+a.alert+'</span> <span class="muted">@ '+a.price+' x'+Number(a.volume_ratio).toFixed(2)+'</span>');
  });
  es.addEventListener('decision', e => {
    const d = JSON.parse(e.data);
    const cls = d.allow ? 'allow' : 'muted';
    prepend('decisions', '<span class="muted">'+fmt(d.ts)+'</span> <b>'+d.symbol+'</b> <span class="'+cls+'">'+d.action+' '+(d.allow?'ALLOW':'BLOCK')+'</span> '+d.reason);
  });
  es.addEventListener('order', e => {
    const o = JSON.parse(e.data);
    prepend('decisions', '<span class="muted">'+fmt(o.ts)+'</span> <b>'+o.symbol+'</b> order '+o.side+' '+o.quantity+(o.simulate?' (sim)':'')+(o.error?' error: '+o.error:''));
  });
  es.onerror = () => { es.close(); setTimeout(connect, 3000); };
}
connect();
</script>
</body>
</html>`
