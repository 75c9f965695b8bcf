package catalog

// defaultBank is the embedded fallback question bank, used when CATALOG_PATH
// is not configured. Topics mirror the production catalog layout.
var defaultBank = []byte(`{
  "topics": {
    "Общая эрудиция": {
      "easy": [
        {"text": "Сколько дней в високосном году?", "options": ["365", "366", "364", "367"], "correctIndex": 1},
        {"text": "Какая планета ближе всего к Солнцу?", "options": ["Венера", "Земля", "Меркурий", "Марс"], "correctIndex": 2},
        {"text": "Сколько цветов у радуги?", "options": ["Шесть", "Семь", "Восемь", "Пять"], "correctIndex": 1},
        {"text": "Какой океан самый большой?", "options": ["Атлантический", "Индийский", "Северный Ледовитый", "Тихий"], "correctIndex": 3},
        {"text": "Столица Франции?", "options": ["Лион", "Марсель", "Париж", "Ницца"], "correctIndex": 2},
        {"text": "Сколько минут в двух часах?", "options": ["100", "120", "140", "90"], "correctIndex": 1}
      ],
      "medium": [
        {"text": "Кто написал роман «Война и мир»?", "options": ["Достоевский", "Толстой", "Тургенев", "Чехов"], "correctIndex": 1},
        {"text": "Какой химический элемент обозначается символом Fe?", "options": ["Фтор", "Фосфор", "Железо", "Франций"], "correctIndex": 2},
        {"text": "В каком году человек впервые полетел в космос?", "options": ["1957", "1961", "1969", "1955"], "correctIndex": 1},
        {"text": "Какая страна подарила США статую Свободы?", "options": ["Великобритания", "Испания", "Франция", "Италия"], "correctIndex": 2},
        {"text": "Сколько струн у классической гитары?", "options": ["Пять", "Шесть", "Семь", "Восемь"], "correctIndex": 1},
        {"text": "Какое море самое солёное?", "options": ["Чёрное", "Красное", "Мёртвое", "Средиземное"], "correctIndex": 2}
      ],
      "hard": [
        {"text": "Какой учёный сформулировал принцип неопределённости?", "options": ["Бор", "Гейзенберг", "Шрёдингер", "Планк"], "correctIndex": 1},
        {"text": "В каком году пала Византийская империя?", "options": ["1453", "1492", "1389", "1517"], "correctIndex": 0},
        {"text": "Какой металл имеет самую высокую температуру плавления?", "options": ["Титан", "Платина", "Вольфрам", "Осмий"], "correctIndex": 2},
        {"text": "Кто автор трактата «Государь»?", "options": ["Гоббс", "Макиавелли", "Локк", "Монтескьё"], "correctIndex": 1},
        {"text": "Какая из этих звёзд ближе всего к Солнечной системе?", "options": ["Сириус", "Альфа Центавра", "Бетельгейзе", "Вега"], "correctIndex": 1},
        {"text": "Сколько симфоний написал Бетховен?", "options": ["Семь", "Девять", "Одиннадцать", "Пять"], "correctIndex": 1}
      ]
    },
    "История": {
      "easy": [
        {"text": "Кто был первым космонавтом Земли?", "options": ["Титов", "Гагарин", "Леонов", "Армстронг"], "correctIndex": 1},
        {"text": "В каком веке жил Пётр I?", "options": ["XVI–XVII", "XVII–XVIII", "XVIII–XIX", "XV–XVI"], "correctIndex": 1},
        {"text": "Какая стена разделяла Берлин?", "options": ["Западная", "Берлинская", "Северная", "Имперская"], "correctIndex": 1},
        {"text": "В каком году закончилась Вторая мировая война?", "options": ["1944", "1945", "1946", "1943"], "correctIndex": 1},
        {"text": "Кто открыл Америку в 1492 году?", "options": ["Магеллан", "Колумб", "Веспуччи", "Кук"], "correctIndex": 1}
      ],
      "medium": [
        {"text": "Какое событие произошло в 1917 году в России?", "options": ["Отмена крепостного права", "Революция", "Русско-японская война", "Коронация Николая II"], "correctIndex": 1},
        {"text": "Кто был фараоном, для которого построена самая большая пирамида Гизы?", "options": ["Тутанхамон", "Хеопс", "Рамзес II", "Эхнатон"], "correctIndex": 1},
        {"text": "Какой город был столицей Древней Руси до Москвы?", "options": ["Новгород", "Киев", "Владимир", "Суздаль"], "correctIndex": 1},
        {"text": "В каком году началась Первая мировая война?", "options": ["1912", "1914", "1916", "1918"], "correctIndex": 1},
        {"text": "Кто возглавлял армию Карфагена в войне с Римом?", "options": ["Сципион", "Ганнибал", "Цезарь", "Александр"], "correctIndex": 1}
      ],
      "hard": [
        {"text": "В каком году была подписана Магна Карта?", "options": ["1215", "1066", "1302", "1189"], "correctIndex": 0},
        {"text": "Какая династия правила Китаем дольше всего?", "options": ["Мин", "Чжоу", "Хань", "Цин"], "correctIndex": 1},
        {"text": "Кто был последним императором Западной Римской империи?", "options": ["Ромул Августул", "Юлий Непот", "Гонорий", "Валентиниан III"], "correctIndex": 0},
        {"text": "В каком году произошла битва при Гастингсе?", "options": ["1066", "1086", "1046", "1106"], "correctIndex": 0},
        {"text": "Какой договор завершил Тридцатилетнюю войну?", "options": ["Утрехтский", "Вестфальский", "Венский", "Парижский"], "correctIndex": 1}
      ]
    }
  }
}`)
