package dashboard

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>FleetWatch Anomalies</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #1a1a1a; color: #fff; }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { color: #4CAF50; }
        .metrics-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin: 20px 0; }
        .metric-card { background: #2a2a2a; padding: 20px; border-radius: 8px; border-left: 4px solid #4CAF50; }
        .metric-value { font-size: 2em; font-weight: bold; color: #4CAF50; }
        .metric-label { color: #999; font-size: 0.9em; }
        .anomaly { padding: 15px; margin: 10px 0; border-radius: 8px; }
        .anomaly-critical { background: #d32f2f; }
        .anomaly-high { background: #ff5722; }
        .anomaly-medium { background: #ff9800; }
        .anomaly-low { background: #ffc107; color: #000; }
        .status { color: #4CAF50; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="container">
        <h1>FleetWatch Anomaly Detection</h1>
        <div class="status" id="status">Connecting to server...</div>

        <div class="metrics-grid">
            <div class="metric-card">
                <div class="metric-label">Total Anomalies</div>
                <div class="metric-value" id="total">0</div>
            </div>
            <div class="metric-card">
                <div class="metric-label">Avg Confidence</div>
                <div class="metric-value" id="confidence">0%</div>
            </div>
            <div class="metric-card">
                <div class="metric-label">Auto-resolved</div>
                <div class="metric-value" id="auto-resolved">0%</div>
            </div>
        </div>

        <h2>Recent Anomalies</h2>
        <div id="anomalies"></div>
    </div>

    <script>
        const statusEl = document.getElementById('status');
        const anomaliesEl = document.getElementById('anomalies');

        function renderStats(stats) {
            document.getElementById('total').textContent = stats.total;
            document.getElementById('confidence').textContent = (stats.avg_confidence * 100).toFixed(0) + '%';
            document.getElementById('auto-resolved').textContent = stats.auto_resolved_rate.toFixed(1) + '%';
        }

        function renderAnomaly(a) {
            const div = document.createElement('div');
            div.className = 'anomaly anomaly-' + a.anomaly_type.severity;
            div.textContent = a.vehicle_name + ' | ' + a.anomaly_type.name + ' | ' + a.context +
                ' | confidence ' + (a.confidence * 100).toFixed(0) + '% | ' + a.recommendation;
            anomaliesEl.insertBefore(div, anomaliesEl.firstChild);
            while (anomaliesEl.children.length > 20) {
                anomaliesEl.removeChild(anomaliesEl.lastChild);
            }
        }

        fetch('/api/statistics').then(r => r.json()).then(renderStats);
        fetch('/api/anomalies?limit=20').then(r => r.json()).then(list => list.reverse().forEach(renderAnomaly));

        const ws = new WebSocket('ws://' + window.location.host + '/ws');
        ws.onopen = () => { statusEl.textContent = 'Connected'; };
        ws.onclose = () => { statusEl.textContent = 'Disconnected'; };
        ws.onmessage = (event) => {
            const msg = JSON.parse(event.data);
            if (msg.kind === 'anomaly') {
                renderAnomaly(msg.data);
            } else if (msg.kind === 'statistics') {
                renderStats(msg.data);
            }
        };
    </script>
</body>
</html>`
