package bot

import (
	"fmt"

	"github.com/roach88/ghostchat/internal/transport"
)

// DefaultFeedbackURL is linked from the end-of-chat message.
const DefaultFeedbackURL = "https://forms.gle/yyQ9BFdEJKxNfJhA9"

const startText = `
🤖 Welcome to GhostChat - An Anonymous Chat Bot!

Connect with random people and have anonymous conversations!

📱 Supported media types:
• Text messages
• Photos and images
• Documents and files
• Voice messages
• Videos and GIFs
• Stickers and emojis
• Location sharing

Available commands:
/connect - Find a chat partner
/refer - Get your referral link
/stats - View your referral stats
/help - Show help message
/settings - Manage your settings

Let's get started! Please select your gender below:
`

const helpText = `
🤖 Anonymous Chat Bot Help

Available Commands:
/start - Start the bot
/connect - Find a random chat partner
/refer - Get your referral link
/stats - View your profile and referral statistics
/disconnect - End current chat
/next - Skip current partner and find new one
/report - Report current partner
/settings - Manage your preferences
/issue - Report a bug

📱 Supported Media Types:
• Text messages and emojis
• Photos and images (JPG, PNG)
• Documents and files (PDF, DOC, etc.)
• Voice messages and audio
• Videos and GIFs
• Stickers
• Location sharing

🔗 Referral System:
• Share your referral link with friends
• Earn VIP membership by referring %d users
• VIP users get higher match priority

✏️ Message Editing:
• Edit your messages in Telegram
• Your partner will see edited messages
• Works for text messages

How to use:
1. Use /connect to find a chat partner
2. Start chatting with any media type
3. Use /next to find a new partner
4. Use /disconnect to end chat

Enjoy chatting! 🎉
`

const (
	textSelectGender   = "Please select your gender:"
	textAskEmail       = "Please enter your email address for verification\nPrefer entering your College/Company email id for getting matched within your College/Comany:"
	textCodeSent       = "An OTP has been sent to %s. Please enter the code: (Example: %sXXXXXX)"
	textCodeSendFailed = "Failed to send OTP. Please check your email address and try again."
	textInvalidEmail   = "Invalid email format. Please enter a valid email address:"
	textInvalidCode    = "Invalid OTP. Please try again or use /start to restart."
	textSessionExpired = "Error: Your session has expired. Please use /start again."
	textVerified       = "Gender '%s' selected and email verified. You can now use /connect to find a chat partner!"
	textSelectOrg      = "Select your matching preference:"
	textOrgChosen      = "You've chosen to match with people from @%s.\nTo change your organisation match preference go to /settings\nUse /connect to find a chat partner!"
	textOpenChosen     = "You've chosen to match in the open category.\nTo change your organisation match preference go to /settings\nUse /connect to find a chat partner!"

	textReferredWelcome = "Welcome! You were successfully referred by another user. 🎉"

	textNeedStart    = "Please use /start first to set up your profile!"
	textLooking      = "Looking for a new partner for you\nPlease wait patiently... 🔍\nUse /disconnect to stop search"
	textAlreadyMatch = "You are already matched\nClick /disconnect and try again"
	textConnectError = "Error connecting. Please try again later."

	textChatEnded       = "Chat ended.\nUse /connect to find a new partner!"
	textPartnerLeft     = "Your partner has left the chat.\nUse /connect to find a new partner!"
	textLobbyLeft       = "You have been removed from lobby.\nUse /connect to find a new partner!"
	textNotInChat       = "You're not currently in a chat.\nUse /connect to find a partner!"
	textDisconnectError = "Error disconnecting. Please try again."

	textNextEnded       = "Chat ended. Looking for a new partner... 🔍"
	textNextPartnerLeft = "Your partner has left the chat. Use /connect to find a new partner!"
	textNextNotInChat   = "You're not currently in a chat. Use /connect to find a partner!"
	textNextError       = "Error finding new partner. Please try again."

	textReported        = "Thanks for reporting! We have shared the last few messages with our review team."
	textNothingToReport = "You're not currently in a chat. Nothing to report."

	textIssueRecorded = "Your issue: \"%s\" has been recorded. Thank you for the feedback!"
	textIssueUsage    = "Write your issue after \"/issue\" command.\n\nFor example: \"/issue voice messages not working\""

	textReferError = "Error generating referral link. Please try again."
	textStatsError = "Error retrieving stats. Please try again."

	textSettings       = "⚙️ Settings - Please select an option:"
	textSelectPref     = "Select your gender preference:"
	textPrefSet        = "Preference set to '%s'."
	textStatusFallback = "Your current membership: Free User"

	textUseConnect = "Please use /connect to find a chat partner or /help for available commands"
	textShareFirst = "Please connect to a partner first using /connect to share %s"
)

const referText = `
🔗 Your Referral Link:
%s

📊 Your Stats:
• Total Referrals: %d/%d
• Status: %s

💡 Share this link with friends!
When %d people join using your link, you'll get VIP membership for %d days!

✨ VIP Benefits:
• Higher match priority
• Faster connections
• Premium features
`

const statsText = `
📊 Your Statistics:

👤 Profile:
• Name: %s
• Gender: %s
• Membership: %s

🔗 Referrals:
• Total Referrals: %d
• VIP Status: %s
• Needed for VIP: %d more referrals

📱 Supported Media:
• Photos, Documents, Voice messages
• Videos, Stickers, Location sharing

Use /refer to get your referral link!
`

// commandList is advertised with setMyCommands.
var commandList = []transport.Command{
	{Name: "start", Description: "To Start the bot"},
	{Name: "help", Description: "To Show help message"},
	{Name: "connect", Description: "To get paired with random user"},
	{Name: "refer", Description: "Get your referral link"},
	{Name: "stats", Description: "View your referral statistics"},
	{Name: "disconnect", Description: "To end the current chat"},
	{Name: "next", Description: "To skip and find a new partner"},
	{Name: "report", Description: "To report the current partner"},
	{Name: "settings", Description: "To manage your settings"},
	{Name: "issue", Description: "To Report a bug"},
}

func genderKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(
		transport.Row(transport.Button{Text: "Male", Data: "gender:Male"}),
		transport.Row(transport.Button{Text: "Female", Data: "gender:Female"}),
	)
}

// orgKeyboard offers org matching for domain. An empty domain leaves only
// the open category.
func orgKeyboard(domain string) *transport.Keyboard {
	open := transport.Row(transport.Button{Text: "Match in Open Category", Data: "org:no"})
	if domain == "" {
		return transport.NewKeyboard(open)
	}
	return transport.NewKeyboard(
		transport.Row(transport.Button{Text: fmt.Sprintf("Match with people from @%s", domain), Data: "org:yes"}),
		open,
	)
}

func settingsKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(
		transport.Row(transport.Button{Text: "Set Gender Preference", Data: "settings:Preference"}),
		transport.Row(transport.Button{Text: "View your Membership Status", Data: "settings:Status"}),
		transport.Row(transport.Button{Text: "Change Organisation Match Preference", Data: "settings:MatchOrg"}),
	)
}

func preferenceKeyboard() *transport.Keyboard {
	return transport.NewKeyboard(
		transport.Row(transport.Button{Text: "Match with Boys", Data: "pref:Male"}),
		transport.Row(transport.Button{Text: "Match with Girls", Data: "pref:Female"}),
		transport.Row(transport.Button{Text: "Match with Anyone", Data: "pref:Any"}),
	)
}

func feedbackKeyboard(url string) *transport.Keyboard {
	return transport.NewKeyboard(
		transport.Row(transport.Button{Text: "Fill Feedback Form", URL: url}),
	)
}
