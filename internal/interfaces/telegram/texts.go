package telegram

const (
	textWelcome = "🌙 Привет! Я — ИИ сонник.\n\n" +
		"Чтобы начать, просто нажми кнопку ниже — я получу твой номер и сохраню твои сны в защищённом профиле."
	textUnknown = "Я не узнаю тебя 😊\nПожалуйста, нажми «📱 Отправить номер» внизу экрана."
	textForeignContact = "Отправь, пожалуйста, свой собственный номер кнопкой «📱 Отправить номер»."
	textConflict       = "Этот номер уже привязан к другому Telegram-аккаунту. Напиши в поддержку, если это ошибка."
	textGreetNew       = "Рад знакомству! ✨\n"
	textGreetBack      = "С возвращением! ✨\n"
	textFillProfile    = "Чтобы я мог глубже понимать твои сны, заполни профиль: /profile"
	textTellDream      = "Теперь ты можешь рассказать мне свой сон."

	textLinked      = "✅ Аккаунт привязан к сайту. Теперь твои сны сохраняются в одном профиле."
	textLinkExpired = "Ссылка устарела или повреждена. Открой профиль на сайте и получи новую."

	textProfileInfo = "Твой профиль:\nИмя: %s\nДата рождения: %s\n\n" +
		"Хочешь изменить имя? Напиши его или «Пропустить»."
	textAskBirthDate  = "Теперь укажи дату рождения в формате ДД.ММ.ГГГГ или «Пропустить»."
	textBadBirthDate  = "Неверный формат. Попробуй: 15.03.1995 или «Пропустить»."
	textProfileSaved  = "✅ Профиль обновлён! Теперь я лучше понимаю тебя."
	textProfileCancel = "Настройка профиля отменена."
	textNothingToStop = "Сейчас нечего отменять."
	textNotSet        = "не указано"
	textNotSetDate    = "не указана"

	textHistoryHeader = "✨ Твои последние сны:\n\n"
	textHistoryEmpty  = "У тебя пока нет записанных снов."
	textHistorySite   = "\nПолная история — на сайте: %s/history/"
	textHistoryError  = "Ошибка загрузки истории."

	textCleared    = "🧹 Чат очищен. История сохранена — ты можешь посмотреть её через /history."
	textClearError = "Не удалось очистить чат."

	textEmptyDream = "Пожалуйста, опиши свой сон."
	textLimit      = "На сегодня лимит толкований исчерпан. Новые толкования будут доступны с %s."
	textPremium    = "⭐ Premium снимает дневной лимит толкований."
	textPremiumURL = "⭐ Premium снимает дневной лимит толкований. Оформить можно на сайте: %s"
	textError      = "Что-то пошло не так. Попробуй ещё раз чуть позже."
	textSlowDown   = "Не так быстро 🙂 Подожди немного и напиши снова."

	textGuide = "📖 <b>Как пользоваться ИИ-сонником</b>\n\n" +
		"1. <b>Расскажи сон подробно</b>: эмоции, люди, места, символы.\n" +
		"   Пример: «Мне снилось, что я теряю зубы перед зеркалом, а за спиной стоит мама в чёрном».\n\n" +
		"2. <b>Не бойся быть уязвимым</b> — сны отражают внутреннее состояние.\n\n" +
		"3. <b>Это не эзотерика</b> — я не предсказываю будущее, а помогаю понять себя.\n\n" +
		"4. Ты всегда можешь:\n" +
		"   • /profile — указать имя и дату рождения\n" +
		"   • /history — посмотреть прошлые сны\n" +
		"   • /clear — начать диалог с чистого листа (история сохраняется!)"
	textHelp = "Команды:\n" +
		"/start — начать и отправить номер\n" +
		"/profile — имя и дата рождения\n" +
		"/history — последние сны\n" +
		"/clear — начать новый диалог\n" +
		"/guide — как рассказывать сны\n" +
		"/cancel — отменить настройку профиля\n\n" +
		"Или просто опиши свой сон."
)
