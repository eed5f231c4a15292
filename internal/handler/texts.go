package handler

const startText = "👋 Hello! Welcome to your Aspen Grade Monitor!\n\n" +
	"I keep track of your grades and assignments and send you a daily update " +
	"at the time you choose. Think of me as your personal academic assistant! 📚\n\n" +
	"<b>Here's what I can do for you:</b>\n\n" +
	"🔑 /register &lt;username&gt; &lt;password&gt; - Connect your Aspen account\n" +
	"📊 /grades - Fetch your current grades and recent assignments\n" +
	"⏰ /settime HH:MM - Choose when the daily update arrives\n" +
	"🌍 /settimezone NAME - Set your timezone (e.g. America/Chicago)\n" +
	"🛑 /stop - Pause daily updates\n\n" +
	"<i>Ready? Start with /register! 📝</i>"

const helpText = "<b>Commands:</b>\n\n" +
	"/register &lt;username&gt; &lt;password&gt; - Save your Aspen credentials and schedule daily updates\n" +
	"/grades - Fetch grades right now\n" +
	"/settime HH:MM - Daily update time (your local time)\n" +
	"/settimezone NAME - IANA timezone, e.g. America/Chicago\n" +
	"/stop - Stop daily updates\n" +
	"/help - This message\n\n" +
	"Updates are skipped on weekends — grades rarely change then."
