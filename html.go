/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/session"
)

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Storyteller</title>
<link rel="stylesheet" href="{{prefix}}/app.css">
</head>
<body data-prefix="{{prefix}}">
<header>
  <h1>Storyteller</h1>
  <span id="status">connecting</span>
</header>
<section id="lobby">
  <input id="name" placeholder="Your name" maxlength="32">
  <input id="room" placeholder="Room code (empty for a new room)" maxlength="8">
  <button id="join">Join</button>
</section>
<section id="game" hidden>
  <div id="info">
    <span>Room <b id="room-id"></b></span>
    <span>Phase <b id="phase"></b></span>
    <button id="leave">Leave</button>
    <img id="qr" alt="Room QR code" width="160" height="160">
  </div>
  <ul id="players"></ul>
  <p id="story"></p>
  <div id="teller">
    <input id="association" placeholder="Association" maxlength="280">
    <button id="tell">Tell story</button>
  </div>
  <h2>Table</h2>
  <div id="table" class="cards"></div>
  <h2>Hand</h2>
  <div id="hand" class="cards"></div>
  <button id="end-turn">End turn</button>
  <p id="winner"></p>
</section>
<script src="{{prefix}}/app.js"></script>
</body>
</html>
`

const appCSS = `body{font-family:sans-serif;margin:0 auto;max-width:60rem;padding:1rem;}
header{display:flex;align-items:baseline;gap:1rem;}
#info{display:flex;flex-wrap:wrap;align-items:center;gap:1rem;}
#qr{margin-left:auto;}
.cards{display:flex;flex-wrap:wrap;gap:.5rem;min-height:3rem;}
.cards button{min-width:4rem;min-height:3rem;}
.cards button.selected{outline:3px solid #c60;}
.cards button.down{background:#333;color:#eee;}
li.Storyteller{font-weight:bold;}
li.Spectator{color:#888;}
`

const appJS = `(() => {
  const $ = (id) => document.getElementById(id);
  const base = document.body.dataset.prefix;
  let ws;
  let roomId = "";

  const status = (text) => { $("status").textContent = text; };
  const send = (...msg) => ws.send(JSON.stringify(msg));

  function connect() {
    const proto = location.protocol === "https:" ? "wss:" : "ws:";
    ws = new WebSocket(proto + "//" + location.host + base + "/ws");
    ws.onopen = () => {
      status("connected");
      if (roomId) send("JoinRoom", roomId, $("name").value);
    };
    ws.onclose = () => { status("disconnected"); setTimeout(connect, 2000); };
    ws.onmessage = (ev) => handle(JSON.parse(ev.data));
  }

  function handle(msg) {
    if (msg === "FailConnect") {
      roomId = "";
      status("could not join that room");
      show(null);
      return;
    }
    const [tag, ...rest] = msg;
    if (tag === "RoomConnect") {
      roomId = rest[0];
      history.replaceState(null, "", base + "/?room=" + roomId);
      show(rest[1]);
    } else if (tag === "RoomUpdate") {
      show(rest[0]);
    }
  }

  function card(id, label, selected, onClick) {
    const b = document.createElement("button");
    b.textContent = label;
    if (!id) b.className = "down";
    if (selected) b.classList.add("selected");
    if (id && onClick) b.onclick = () => onClick(id);
    return b;
  }

  function show(view) {
    $("lobby").hidden = !!view;
    $("game").hidden = !view;
    if (!view) return;

    $("room-id").textContent = roomId;
    $("qr").src = base + "/room/" + roomId + "/qr";
    $("phase").textContent = view.Phase;
    $("story").textContent = view.Table.Story;

    const players = $("players");
    players.replaceChildren(...[view.Client, ...view.Opponents].map((p) => {
      const li = document.createElement("li");
      li.className = p.Role;
      li.textContent = p.Name + " (" + p.Role + ") " + p.Score + (p.MoveAvailable ? " *" : "");
      return li;
    }));

    const pick = (id) => send("SelectCard", id);
    const selected = view.Hand.SelectedCard;
    $("hand").replaceChildren(...view.Hand.Cards.map((id) => card(id, id, id === selected, pick)));
    $("table").replaceChildren(...view.Table.Cards.map(([id, reveal]) => {
      const label = id ? id + (reveal ? " - " + reveal.Owner.Name + " (" + reveal.Voters.length + ")" : "") : "?";
      return card(id, label, id === selected, pick);
    }));

    const telling = view.Client.Role === "Storyteller" && view.Phase === "Storytelling";
    $("teller").hidden = !telling;
    $("end-turn").hidden = !view.Client.MoveAvailable || telling;
    $("winner").textContent = view.Winner ? view.Winner.Name + " wins with " + view.Winner.Score : "";
  }

  $("join").onclick = () => send("JoinRoom", $("room").value.trim(), $("name").value);
  $("leave").onclick = () => { roomId = ""; send("LeaveRoom"); show(null); };
  $("tell").onclick = () => send("TellStory", $("association").value);
  $("end-turn").onclick = () => send("EndTurn");
  $("name").onchange = () => send("UpdateInfo", { Name: $("name").value, Avi: "" });
  $("room").value = new URLSearchParams(location.search).get("room") || "";

  connect();
})();
`

func serveStatic(cfg *Config, contentType, data string, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(data)); err != nil {
			errs <- err
		}
	}
}

func serveHomePage(cfg *Config, identity *session.Identity, errs chan<- error) httprouter.Handle {
	page := strings.ReplaceAll(indexHTML, "{{prefix}}", html.EscapeString(cfg.prefix))

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		if _, err := identity.PlayerID(w, r); err != nil {
			errs <- err
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(page))
		if err != nil {
			errs <- err

			return
		}

		cfg.log.Info("SERVE: Home page",
			zap.String("size", humanReadableSize(int64(written))),
			zap.String("ip", realIP(r)),
			zap.Duration("duration", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /ws
Disallow: /room/

User-agent: Amazonbot
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: GPTBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
