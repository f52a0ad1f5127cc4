package dashboard

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>MapPhone Extractor</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; }
        .header h1 { font-size: 1.5rem; color: #38bdf8; }
        .header p { color: #94a3b8; font-size: 0.875rem; margin-top: 0.25rem; }
        main { max-width: 960px; margin: 0 auto; padding: 2rem; }
        .search { display: flex; gap: 0.75rem; }
        .search input { flex: 1; padding: 0.75rem 1rem; border-radius: 8px; border: 1px solid #475569; background: #1e293b; color: #f1f5f9; font-size: 1rem; }
        button { padding: 0.75rem 1.25rem; border-radius: 8px; border: none; background: #38bdf8; color: #0f172a; font-weight: 600; cursor: pointer; }
        button:disabled { opacity: 0.5; cursor: not-allowed; }
        button.secondary { background: #334155; color: #e2e8f0; }
        .progress { margin-top: 1.5rem; padding: 1rem; border-radius: 8px; background: #1e293b; border: 1px solid #334155; }
        .progress.ok { border-color: #4ade80; }
        .progress.error { border-color: #f87171; color: #fca5a5; }
        .bar { height: 6px; background: #334155; border-radius: 3px; margin-top: 0.75rem; overflow: hidden; }
        .bar div { height: 100%; width: 0; background: #38bdf8; transition: width 0.5s; }
        .results { margin-top: 1.5rem; }
        .downloads { display: flex; gap: 0.75rem; margin-bottom: 1rem; }
        .downloads a { color: #38bdf8; }
        table { width: 100%; border-collapse: collapse; background: #1e293b; border-radius: 8px; overflow: hidden; }
        th, td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid #334155; font-size: 0.875rem; }
        th { color: #94a3b8; text-transform: uppercase; font-size: 0.75rem; letter-spacing: 0.05em; }
        td a { color: #38bdf8; }
        .modal { position: fixed; inset: 0; background: rgba(15, 23, 42, 0.8); display: flex; align-items: center; justify-content: center; }
        .modal .box { background: #1e293b; border: 1px solid #475569; border-radius: 12px; padding: 1.5rem; max-width: 420px; }
        .modal .actions { display: flex; gap: 0.75rem; justify-content: flex-end; margin-top: 1rem; }
        .hidden { display: none; }
    </style>
</head>
<body>
    <div class="header">
        <h1>MapPhone Extractor</h1>
        <p>Business names, websites and phone numbers from map listings</p>
    </div>
    <main>
        <div class="search">
            <input id="searchTerm" type="text" placeholder="e.g. dental clinics in Lahore">
            <button id="scrapeBtn">Scrape</button>
        </div>

        <div id="progress" class="progress hidden">
            <span id="progressText"></span>
            <div class="bar"><div id="progressBar"></div></div>
        </div>

        <div id="results" class="results hidden">
            <div class="downloads">
                <a id="downloadPhones" href="#">Download phones.csv</a>
                <a id="downloadWebsites" href="#">Download websites.csv</a>
            </div>
            <table>
                <thead><tr><th>Business</th><th>Website</th><th>Phone</th></tr></thead>
                <tbody id="resultsTable"></tbody>
            </table>
        </div>
    </main>

    <div id="confirmModal" class="modal hidden">
        <div class="box">
            <h3>Start scraping?</h3>
            <p id="confirmMessage"></p>
            <div class="actions">
                <button id="cancelBtn" class="secondary">Cancel</button>
                <button id="proceedBtn">Proceed</button>
            </div>
        </div>
    </div>

    <script>
        const $ = id => document.getElementById(id);
        const POLL_INTERVAL = 3000;
        const MAX_POLL = 10 * 60 * 1000;

        function confirmStart(term) {
            $('confirmMessage').textContent = 'Scrape phone numbers for "' + term + '"? This might take a few minutes.';
            $('confirmModal').classList.remove('hidden');
            return new Promise(resolve => {
                $('proceedBtn').onclick = () => { $('confirmModal').classList.add('hidden'); resolve(true); };
                $('cancelBtn').onclick = () => { $('confirmModal').classList.add('hidden'); resolve(false); };
            });
        }

        function fail(message) {
            $('progress').classList.add('error');
            $('progressText').textContent = 'Error: ' + message;
            $('progressBar').style.width = '100%';
            $('scrapeBtn').disabled = false;
        }

        function cell(text, link) {
            const td = document.createElement('td');
            if (link && text !== 'N/A') {
                const a = document.createElement('a');
                a.href = text; a.target = '_blank'; a.textContent = text;
                td.appendChild(a);
            } else {
                td.textContent = text;
            }
            return td;
        }

        function render(data) {
            const table = $('resultsTable');
            table.innerHTML = '';
            const rows = data.result || [];
            if (rows.length === 0) {
                table.innerHTML = '<tr><td colspan="3">No businesses found.</td></tr>';
            }
            rows.forEach(b => {
                const tr = document.createElement('tr');
                tr.appendChild(cell(b.business_name));
                tr.appendChild(cell(b.website, true));
                tr.appendChild(cell(b.phone));
                table.appendChild(tr);
            });
            $('downloadPhones').href = data.phones_csv;
            $('downloadWebsites').href = data.websites_csv;
            $('results').classList.remove('hidden');
        }

        async function poll(jobId, started) {
            if (Date.now() - started > MAX_POLL) {
                fail('Scraping timeout. Please try again.');
                return;
            }
            try {
                const res = await fetch('/scrape_status/' + jobId);
                const data = await res.json();
                if (data.status === 'running') {
                    const bar = $('progressBar');
                    const width = parseFloat(bar.style.width) || 0;
                    bar.style.width = Math.min(width + 2, 95) + '%';
                    $('progressText').textContent = 'Scraping is in progress, please wait...';
                    setTimeout(() => poll(jobId, started), POLL_INTERVAL);
                } else if (data.status === 'complete') {
                    $('progressBar').style.width = '100%';
                    $('progress').classList.add('ok');
                    $('progressText').textContent = data.message;
                    $('scrapeBtn').disabled = false;
                    render(data);
                } else if (data.status === 'failed') {
                    fail(data.error || 'Scraping job failed. Please check the logs.');
                } else {
                    fail('Scraping job not found. Please try again.');
                }
            } catch (err) {
                fail(err.message);
            }
        }

        $('scrapeBtn').addEventListener('click', async () => {
            const term = $('searchTerm').value.trim();
            if (!term) {
                alert('Please enter a search term (e.g. dental clinics in Lahore).');
                return;
            }
            if (!await confirmStart(term)) return;

            $('progress').classList.remove('hidden', 'ok', 'error');
            $('results').classList.add('hidden');
            $('progressBar').style.width = '0';
            $('progressText').textContent = 'Scraping for "' + term + '" has started. Please wait...';
            $('scrapeBtn').disabled = true;

            try {
                const res = await fetch('/start_scrape', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ search_term: term })
                });
                const data = await res.json();
                if (data.error) throw new Error(data.error);
                poll(data.job_id, Date.now());
            } catch (err) {
                fail(err.message);
            }
        });
    </script>
</body>
</html>`
